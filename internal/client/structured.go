package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/makeasinger/showrunner/internal/apperr"
)

const strictJSONInstruction = "Respond with a single JSON object only. No markdown, no code fences, no commentary."

// GenerateStructured asks for a JSON document matching schema. A reply that does not
// parse or validate gets one stricter follow-up before failing with ErrParse.
func (c *TextClient) GenerateStructured(ctx context.Context, req *TextRequest, schema json.RawMessage) (json.RawMessage, error) {
	return GenerateStructuredWith(ctx, c, req, schema)
}

// TextCompleter is the free-form half of TextGenerator.
type TextCompleter interface {
	Generate(ctx context.Context, req *TextRequest) (string, error)
}

// GenerateStructuredWith runs the structured protocol on top of any TextCompleter.
func GenerateStructuredWith(ctx context.Context, gen TextCompleter, req *TextRequest, schema json.RawMessage) (json.RawMessage, error) {
	if req == nil {
		return nil, apperr.Validation("text structured", "request is required")
	}

	first := *req
	first.System = joinInstructions(req.System, strictJSONInstruction)
	content, err := gen.Generate(ctx, &first)
	if err != nil {
		return nil, err
	}
	parsed, issue := decodeStructured(schema, content)
	if issue == nil {
		return parsed, nil
	}
	slog.Warn("structured output rejected, retrying with stricter instruction", "error", issue)

	repair := first
	repair.Temperature = 0.2
	repair.Prompt = req.Prompt + "\n\n" + structuredRepairPrompt(schema, content, issue)
	content, err = gen.Generate(ctx, &repair)
	if err != nil {
		return nil, err
	}
	parsed, issue = decodeStructured(schema, content)
	if issue != nil {
		return nil, apperr.Wrap(apperr.ErrParse, "text structured", "no valid structured output after retry", issue)
	}
	return parsed, nil
}

func decodeStructured(schema json.RawMessage, content string) (json.RawMessage, error) {
	parsed, err := parseStructuredJSON(content)
	if err != nil {
		return nil, err
	}
	if err := validateStructuredJSON(schema, parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

func joinInstructions(system, extra string) string {
	system = strings.TrimSpace(system)
	if system == "" {
		return extra
	}
	return system + "\n\n" + extra
}

// parseStructuredJSON parses JSON from model output, with lightweight recovery
// for markdown code fences and surrounding text.
func parseStructuredJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty structured output")
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}
	if extracted := extractJSONObject(content); extracted != "" && extracted != content {
		candidates = append(candidates, extracted)
	}

	for _, candidate := range candidates {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			normalized, err := json.Marshal(parsed)
			if err != nil {
				return nil, fmt.Errorf("failed to normalize structured output: %w", err)
			}
			return normalized, nil
		}
	}
	return nil, fmt.Errorf("failed to parse structured JSON")
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return ""
	}
	return strings.TrimSpace(content[start : end+1])
}

// validateStructuredJSON validates parsed JSON against the schema document.
func validateStructuredJSON(schemaRaw, parsed json.RawMessage) error {
	if len(schemaRaw) == 0 || len(parsed) == 0 {
		return nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaRaw)); err != nil {
		return fmt.Errorf("failed to load structured schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile structured schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(parsed, &doc); err != nil {
		return fmt.Errorf("failed to decode structured JSON for validation: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("structured output does not match schema: %w", err)
	}
	return nil
}

func structuredRepairPrompt(schemaRaw json.RawMessage, lastOutput string, issue error) string {
	lastOutput = strings.TrimSpace(lastOutput)
	if len(lastOutput) > 8000 {
		lastOutput = lastOutput[:8000] + "\n...[truncated]"
	}

	return fmt.Sprintf(`Return ONLY valid JSON (no markdown, no commentary) that strictly conforms to this schema.

Schema:
%s

Your previous output:
%s

Validation issue:
%v`, string(schemaRaw), lastOutput, issue)
}
