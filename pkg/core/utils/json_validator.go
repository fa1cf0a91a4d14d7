package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// ErrNoJSON is returned when a model answer contains no JSON object at all.
var ErrNoJSON = errors.New("no JSON object in response")

// StripCodeFence removes an outer markdown code block (```json ... ```)
// and surrounding whitespace.
func StripCodeFence(input string) string {
	cleaned := strings.TrimSpace(input)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	cleaned = strings.TrimPrefix(cleaned, "```")
	if nl := strings.IndexByte(cleaned, '\n'); nl >= 0 && !strings.ContainsAny(cleaned[:nl], "{[") {
		cleaned = cleaned[nl+1:] // language tag
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}

// ExtractJSONObject returns the outermost {...} span of a model answer,
// dropping prose before and after it.
func ExtractJSONObject(input string) (string, error) {
	cleaned := StripCodeFence(input)
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 {
		return "", ErrNoJSON
	}
	if end < start {
		// Truncated answer; let the repair step try to close it.
		return cleaned[start:], nil
	}
	return cleaned[start : end+1], nil
}

// RepairJSON attempts to fix common JSON errors from LLM outputs:
// missing quotes around keys, single quotes, unclosed arrays/objects,
// TRUE/FALSE/Null literals, trailing commas and comments.
func RepairJSON(malformedJSON string) (string, error) {
	repaired, err := jsonrepair.RepairJSON(malformedJSON)
	if err != nil {
		return "", fmt.Errorf("JSON_REPAIR_FAILED: %v", err)
	}
	return repaired, nil
}

// ParseHJSON parses Human-friendly JSON (Hjson) and returns standard JSON.
// Hjson accepts comments, unquoted keys and strings, and optional commas.
func ParseHJSON(hjsonData string) (string, error) {
	var result interface{}
	err := hjson.Unmarshal([]byte(hjsonData), &result)
	if err != nil {
		return "", fmt.Errorf("HJSON_PARSE_ERROR: %v", err)
	}

	jsonBytes, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("JSON_MARSHAL_ERROR: %v", err)
	}

	return string(jsonBytes), nil
}

// SmartParse tries multiple parsing strategies to decode a model answer
// into target. Order of attempts:
// 1. Standard JSON parse of the extracted object
// 2. JSON repair
// 3. Hjson parse (most lenient)
func SmartParse(input string, target interface{}) (string, error) {
	candidate, err := ExtractJSONObject(input)
	if err != nil {
		return "", err
	}

	if err := json.Unmarshal([]byte(candidate), target); err == nil {
		return candidate, nil
	}

	repaired, err := RepairJSON(candidate)
	if err == nil {
		if err := json.Unmarshal([]byte(repaired), target); err == nil {
			return repaired, nil
		}
	}

	hjsonResult, err := ParseHJSON(candidate)
	if err == nil {
		if err := json.Unmarshal([]byte(hjsonResult), target); err == nil {
			return hjsonResult, nil
		}
	}

	return "", fmt.Errorf("SMART_PARSE_FAILED: all parsing strategies failed for input")
}
