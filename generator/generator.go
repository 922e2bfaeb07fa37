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
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"querygate/platform/config"
	"querygate/platform/gateway/schema"
)

// modelInvoker is the slice of the Bedrock runtime client we use.
type modelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Generator turns a natural-language intent into candidate SQL via a
// hosted model. Its output carries no trust whatsoever: the gateway
// pushes it through the same validation pipeline as hand-written SQL.
type Generator struct {
	client      modelInvoker
	model       string
	maxTokens   int
	temperature float64
}

// New creates a Generator against AWS Bedrock.
func New(ctx context.Context, cfg config.Generator) (*Generator, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &Generator{
		client:      bedrockruntime.NewFromConfig(awsCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// anthropic messages request/response, Bedrock wire format.
type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float64            `json:"temperature"`
	System           string             `json:"system"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Generate asks the model for a single SELECT statement answering the
// intent against the given schema and returns the model's text. The
// caller must treat the result as untrusted input.
func (g *Generator) Generate(ctx context.Context, intent string, snap *schema.Snapshot) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        g.maxTokens,
		Temperature:      g.temperature,
		System:           systemPrompt(snap),
		Messages: []anthropicMessage{
			{Role: "user", Content: intent},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encoding model request: %w", err)
	}

	out, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(g.model),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("invoking model: %w", err)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("decoding model response: %w", err)
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("model returned no content")
	}

	return extractSQL(resp.Content[0].Text), nil
}

// systemPrompt grounds the model in the connection's actual tables so
// it does not invent columns.
func systemPrompt(snap *schema.Snapshot) string {
	var b strings.Builder
	b.WriteString("You translate questions into a single read-only SQL SELECT statement.\n")
	b.WriteString("Rules: one statement, SELECT only, no comments, name columns explicitly.\n")
	b.WriteString("Respond with the SQL statement and nothing else.\n\n")
	b.WriteString("Available tables:\n")
	for _, table := range snap.Tables {
		b.WriteString("  ")
		b.WriteString(table.Name)
		b.WriteString(" (")
		for i, col := range table.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(col.Name)
			b.WriteString(" ")
			b.WriteString(col.DataType)
		}
		b.WriteString(")\n")
	}
	return b.String()
}

// extractSQL unwraps a markdown code fence if the model added one. No
// other cleanup happens here; the validator judges the text as-is.
func extractSQL(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```sql")
	text = strings.TrimPrefix(text, "```")
	if i := strings.Index(text, "```"); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}
