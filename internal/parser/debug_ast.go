package parser

import (
	"conduit/internal/ast"
	"encoding/json"
	"reflect"
)

// WalkAST serializes an AST into plain maps and slices for tool consumption.
func WalkAST(node ast.Node) interface{} {
	if node == nil || (reflect.ValueOf(node).Kind() == reflect.Ptr && reflect.ValueOf(node).IsNil()) {
		return nil
	}

	switch n := node.(type) {
	case *ast.Program:
		expressions := make([]interface{}, len(n.Expressions))
		for i, e := range n.Expressions {
			expressions[i] = map[string]interface{}{
				"label":      n.Label(i),
				"expression": WalkAST(e),
			}
		}
		return map[string]interface{}{
			"type":        "Program",
			"expressions": expressions,
		}

	case *ast.NumberLiteral:
		return map[string]interface{}{"type": "NumberLiteral", "value": n.Value}

	case *ast.StringLiteral:
		return map[string]interface{}{"type": "StringLiteral", "value": n.Value}

	case *ast.Boolean:
		return map[string]interface{}{"type": "Boolean", "value": n.Value}

	case *ast.None:
		return map[string]interface{}{"type": "None"}

	case *ast.Identifier:
		return map[string]interface{}{"type": "Identifier", "value": n.Value}

	case *ast.Topic:
		return map[string]interface{}{"type": "Topic"}

	case *ast.PrefixExpression:
		return map[string]interface{}{
			"type":     "PrefixExpression",
			"operator": n.Operator,
			"right":    WalkAST(n.Right),
		}

	case *ast.InfixExpression:
		return map[string]interface{}{
			"type":     "InfixExpression",
			"operator": n.Operator,
			"left":     WalkAST(n.Left),
			"right":    WalkAST(n.Right),
		}

	case *ast.AssignmentExpression:
		return map[string]interface{}{
			"type":  "AssignmentExpression",
			"name":  n.Name.Value,
			"value": WalkAST(n.Value),
		}

	case *ast.PipeExpression:
		return map[string]interface{}{
			"type":  "PipeExpression",
			"left":  WalkAST(n.Left),
			"right": WalkAST(n.Right),
		}

	case *ast.PolicyExpression:
		return map[string]interface{}{
			"type":   "PolicyExpression",
			"policy": n.Policy.String(),
			"right":  WalkAST(n.Right),
		}

	case *ast.CallExpression:
		args := make([]interface{}, len(n.Arguments))
		for i, a := range n.Arguments {
			args[i] = WalkAST(a)
		}
		return map[string]interface{}{
			"type":      "CallExpression",
			"function":  WalkAST(n.Function),
			"arguments": args,
		}

	case *ast.FunctionLiteral:
		params := make([]string, len(n.Parameters))
		for i, p := range n.Parameters {
			params[i] = p.Value
		}
		return map[string]interface{}{
			"type":       "FunctionLiteral",
			"parameters": params,
			"body":       WalkAST(n.Body),
		}

	case *ast.MatchExpression:
		cases := make([]interface{}, len(n.Cases))
		for i, c := range n.Cases {
			cases[i] = map[string]interface{}{
				"pattern": WalkAST(c.Pattern),
				"body":    WalkAST(c.Body),
			}
		}
		return map[string]interface{}{
			"type":  "MatchExpression",
			"value": WalkAST(n.Value),
			"cases": cases,
		}

	case *ast.WildcardPattern:
		return map[string]interface{}{"type": "WildcardPattern"}

	case *ast.IdentifierPattern:
		return map[string]interface{}{"type": "IdentifierPattern", "name": n.Value.Value}

	case *ast.LiteralPattern:
		return map[string]interface{}{"type": "LiteralPattern", "value": WalkAST(n.Value)}

	case *ast.ResultPattern:
		return map[string]interface{}{
			"type":  "ResultPattern",
			"ok":    n.Ok,
			"inner": WalkAST(n.Inner),
		}
	}

	return map[string]interface{}{"type": "Unknown", "source": node.String()}
}

// RenderASTAsJSON returns the indented JSON form of WalkAST(node).
func RenderASTAsJSON(node ast.Node) ([]byte, error) {
	return json.MarshalIndent(WalkAST(node), "", "  ")
}
