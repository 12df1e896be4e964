package gate

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type schemaError struct {
	Path    string
	Line    int
	Message string
}

func (e schemaError) String() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d field %s: %s", e.Line, e.Path, e.Message)
	}
	return fmt.Sprintf("field %s: %s", e.Path, e.Message)
}

func formatSchemaErrors(errs []schemaError) string {
	sort.Slice(errs, func(i, j int) bool {
		if errs[i].Line != errs[j].Line {
			return errs[i].Line < errs[j].Line
		}
		if errs[i].Path != errs[j].Path {
			return errs[i].Path < errs[j].Path
		}
		return errs[i].Message < errs[j].Message
	})
	var b strings.Builder
	b.WriteString("schema validation failed")
	for _, e := range errs {
		b.WriteString("\n- ")
		b.WriteString(e.String())
	}
	return b.String()
}

var gateFields = []string{"name", "enabled", "blocking", "threshold", "sources", "requiredTests"}

// validateConfigSchema checks the raw YAML document before decoding:
// unknown fields, duplicate keys, and wrong node kinds are reported with
// line numbers rather than being silently dropped by the decoder.
func validateConfigSchema(root *yaml.Node) []schemaError {
	if root == nil || len(root.Content) == 0 {
		return []schemaError{{Path: "config", Message: "empty YAML document"}}
	}
	errList := []schemaError{}
	top := validateMapNode(root.Content[0], "config", []string{"gates", "environments"}, []string{"gates"}, &errList)

	if gates, ok := top["gates"]; ok {
		for id, node := range mapEntries(gates, "config.gates", &errList) {
			g := validateMapNode(node, "config.gates."+id, gateFields, []string{"name", "threshold"}, &errList)
			if th, ok := g["threshold"]; ok {
				validateMapNode(th, "config.gates."+id+".threshold", []string{"max", "min"}, nil, &errList)
			}
		}
	}
	if envs, ok := top["environments"]; ok {
		for env, envNode := range mapEntries(envs, "config.environments", &errList) {
			for id, node := range mapEntries(envNode, "config.environments."+env, &errList) {
				path := "config.environments." + env + "." + id
				o := validateMapNode(node, path, gateFields, nil, &errList)
				if th, ok := o["threshold"]; ok {
					validateMapNode(th, path+".threshold", []string{"max", "min"}, nil, &errList)
				}
			}
		}
	}
	return errList
}

func validateMapNode(node *yaml.Node, path string, allowed, required []string, errs *[]schemaError) map[string]*yaml.Node {
	result := map[string]*yaml.Node{}
	if node == nil {
		*errs = append(*errs, schemaError{Path: path, Message: "missing object"})
		return result
	}
	if node.Kind != yaml.MappingNode {
		*errs = append(*errs, schemaError{Path: path, Line: node.Line, Message: "must be a mapping/object"})
		return result
	}
	allowedSet := map[string]bool{}
	for _, a := range allowed {
		allowedSet[a] = true
	}
	seen := map[string]int{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		k := node.Content[i]
		v := node.Content[i+1]
		key := k.Value
		if prevLine, ok := seen[key]; ok {
			*errs = append(*errs, schemaError{Path: path + "." + key, Line: k.Line, Message: fmt.Sprintf("duplicate key (already defined at line %d)", prevLine)})
			continue
		}
		seen[key] = k.Line
		if len(allowed) > 0 && !allowedSet[key] {
			*errs = append(*errs, schemaError{Path: path + "." + key, Line: k.Line, Message: "unknown field"})
		}
		result[key] = v
	}
	for _, req := range required {
		if _, ok := result[req]; !ok {
			*errs = append(*errs, schemaError{Path: path + "." + req, Line: node.Line, Message: "missing required field"})
		}
	}
	return result
}

// mapEntries walks a mapping whose keys are caller-defined (gate ids,
// environment names) rather than a fixed schema.
func mapEntries(node *yaml.Node, path string, errs *[]schemaError) map[string]*yaml.Node {
	return validateMapNode(node, path, nil, nil, errs)
}
