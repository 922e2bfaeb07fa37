// Copyright 2025 QueryGate
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package generator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"querygate/platform/gateway/schema"
)

type fakeInvoker struct {
	lastInput *bedrockruntime.InvokeModelInput
	response  string
	err       error
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.lastInput = params
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.response)}, nil
}

func testSnapshot() *schema.Snapshot {
	return &schema.Snapshot{
		Connection: "orders-db",
		Tables: []schema.Table{
			{
				Name: "users",
				Columns: []schema.Column{
					{Name: "id", DataType: "integer"},
					{Name: "email", DataType: "text"},
				},
			},
		},
	}
}

func TestGenerate(t *testing.T) {
	fake := &fakeInvoker{
		response: `{"content": [{"type": "text", "text": "SELECT id, email FROM users"}]}`,
	}
	g := &Generator{client: fake, model: "test-model", maxTokens: 512, temperature: 0.2}

	sql, err := g.Generate(context.Background(), "list all user emails", testSnapshot())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if sql != "SELECT id, email FROM users" {
		t.Errorf("Unexpected SQL %q", sql)
	}

	if *fake.lastInput.ModelId != "test-model" {
		t.Errorf("Unexpected model id %s", *fake.lastInput.ModelId)
	}

	var req anthropicRequest
	if err := json.Unmarshal(fake.lastInput.Body, &req); err != nil {
		t.Fatalf("Request body is not valid JSON: %v", err)
	}
	if req.AnthropicVersion != "bedrock-2023-05-31" {
		t.Errorf("Unexpected anthropic_version %s", req.AnthropicVersion)
	}
	if !strings.Contains(req.System, "users (id integer, email text)") {
		t.Errorf("System prompt missing schema grounding:\n%s", req.System)
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "list all user emails" {
		t.Errorf("Unexpected messages %+v", req.Messages)
	}
}

func TestGenerateStripsCodeFence(t *testing.T) {
	fake := &fakeInvoker{
		response: `{"content": [{"type": "text", "text": "` + "```sql\\nSELECT id FROM users\\n```" + `"}]}`,
	}
	g := &Generator{client: fake, model: "m", maxTokens: 512}

	sql, err := g.Generate(context.Background(), "ids", testSnapshot())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if sql != "SELECT id FROM users" {
		t.Errorf("Expected fence stripped, got %q", sql)
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeInvoker
	}{
		{"invoke failure", &fakeInvoker{err: errors.New("throttled")}},
		{"malformed response", &fakeInvoker{response: "not json"}},
		{"empty content", &fakeInvoker{response: `{"content": []}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Generator{client: tt.fake, model: "m", maxTokens: 512}
			if _, err := g.Generate(context.Background(), "x", testSnapshot()); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"  SELECT 1  ", "SELECT 1"},
		{"```sql\nSELECT 1\n```", "SELECT 1"},
		{"```\nSELECT 1\n```", "SELECT 1"},
		{"```sql\nSELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		if got := extractSQL(tt.in); got != tt.want {
			t.Errorf("extractSQL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
