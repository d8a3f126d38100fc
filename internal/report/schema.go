package report

// Schema is the JSON Schema (Draft 2020-12) for the tally run report.
// It documents the structure returned by WriteJSON.
const Schema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://github.com/unbound-force/tally/run-report.schema.json",
  "title": "Tally Run Report",
  "description": "Output schema for tally run --format=json and tally profile --format=json",
  "type": "object",
  "required": ["version", "session_id", "plan", "passed", "workers", "steals", "summary",
    "coverage", "superblocks", "results", "tests", "hit_counts", "edge_hits",
    "violations", "tainted", "stray_hits", "metrics", "hypotheses", "gate"],
  "properties": {
    "version": { "type": "string", "description": "tally version" },
    "session_id": { "type": "string", "description": "UUID of the collection session" },
    "plan": { "type": "string" },
    "passed": { "type": "boolean", "description": "Gate passed and no hypothesis falsified" },
    "workers": { "type": "integer", "minimum": 1 },
    "steals": { "type": "integer", "minimum": 0 },
    "summary": { "$ref": "#/$defs/Summary" },
    "coverage": { "$ref": "#/$defs/Coverage" },
    "superblocks": { "type": "array", "items": { "$ref": "#/$defs/Superblock" } },
    "results": { "type": "array", "items": { "$ref": "#/$defs/SuperblockResult" } },
    "tests": { "type": "array", "items": { "$ref": "#/$defs/TestRecord" } },
    "hit_counts": {
      "type": "array",
      "description": "Aggregate hits per block, indexed by block ordinal",
      "items": { "type": "integer", "minimum": 0 }
    },
    "edge_hits": { "type": "array", "items": { "$ref": "#/$defs/EdgeHit" } },
    "violations": { "type": "array", "items": { "$ref": "#/$defs/Violation" } },
    "tainted": { "type": "array", "items": { "$ref": "#/$defs/TaintedBlock" } },
    "stray_hits": { "type": "integer", "minimum": 0 },
    "metrics": {
      "type": "object",
      "additionalProperties": { "type": "number" }
    },
    "hypotheses": { "type": "array", "items": { "$ref": "#/$defs/Hypothesis" } },
    "gate": { "$ref": "#/$defs/GateResult" }
  },
  "$defs": {
    "Summary": {
      "type": "object",
      "required": ["total_blocks", "covered_blocks", "coverage_percent", "tainted_blocks",
        "covered_edges", "declared_edges"],
      "properties": {
        "total_blocks": { "type": "integer", "minimum": 0 },
        "covered_blocks": { "type": "integer", "minimum": 0 },
        "coverage_percent": { "type": "number", "minimum": 0, "maximum": 100 },
        "tainted_blocks": { "type": "integer", "minimum": 0 },
        "covered_edges": { "type": "integer", "minimum": 0 },
        "declared_edges": { "type": "integer", "minimum": 0 }
      }
    },
    "Interval": {
      "type": "object",
      "required": ["lower", "upper", "level"],
      "properties": {
        "lower": { "type": "number", "minimum": 0, "maximum": 1 },
        "upper": { "type": "number", "minimum": 0, "maximum": 1 },
        "level": { "type": "number" }
      }
    },
    "Coverage": {
      "type": "object",
      "required": ["granularity", "covered", "total", "fraction", "interval"],
      "properties": {
        "granularity": { "type": "string", "enum": ["function", "basic_block", "edge"] },
        "covered": { "type": "integer", "minimum": 0 },
        "total": { "type": "integer", "minimum": 0 },
        "fraction": { "type": "number", "minimum": 0, "maximum": 1 },
        "interval": { "$ref": "#/$defs/Interval" }
      }
    },
    "Superblock": {
      "type": "object",
      "required": ["id", "owner", "blocks", "cost_estimate"],
      "properties": {
        "id": { "type": "integer", "minimum": 0 },
        "owner": { "type": "integer", "minimum": 0 },
        "blocks": { "type": "array", "items": { "type": "integer", "minimum": 0 } },
        "cost_estimate": { "type": "number", "minimum": 0 }
      }
    },
    "SuperblockResult": {
      "type": "object",
      "required": ["id", "success"],
      "properties": {
        "id": { "type": "integer", "minimum": 0 },
        "success": { "type": "boolean" },
        "error": { "type": "string" }
      }
    },
    "TestRecord": {
      "type": "object",
      "required": ["name", "passed", "blocks_hit"],
      "properties": {
        "name": { "type": "string" },
        "passed": { "type": "boolean" },
        "blocks_hit": { "type": "integer", "minimum": 0 }
      }
    },
    "EdgeHit": {
      "type": "object",
      "required": ["edge", "label", "count"],
      "properties": {
        "edge": { "type": "integer", "minimum": 0, "description": "Packed source<<32 | target" },
        "label": { "type": "string" },
        "count": { "type": "integer", "minimum": 0 }
      }
    },
    "Violation": {
      "type": "object",
      "required": ["kind", "action", "message"],
      "properties": {
        "kind": {
          "type": "string",
          "enum": ["uninstrumented_execution", "impossible_edge", "counter_overflow", "coverage_regression"]
        },
        "action": { "type": "string", "enum": ["stop", "log_and_continue"] },
        "block": { "type": "integer", "minimum": 0 },
        "from": { "type": "integer", "minimum": 0 },
        "to": { "type": "integer", "minimum": 0 },
        "expected": { "type": "number" },
        "actual": { "type": "number" },
        "message": { "type": "string" }
      }
    },
    "TaintedBlock": {
      "type": "object",
      "required": ["block", "cause"],
      "properties": {
        "block": { "type": "integer", "minimum": 0 },
        "cause": { "type": "string" }
      }
    },
    "Condition": {
      "type": "object",
      "required": ["description", "operator", "target"],
      "properties": {
        "description": { "type": "string" },
        "operator": { "type": "string", "enum": ["<", "<=", ">", ">=", "==", "!="] },
        "target": { "type": "number" }
      }
    },
    "Hypothesis": {
      "type": "object",
      "required": ["id", "null_hypothesis", "threshold", "conditions", "falsifiability_score", "falsified"],
      "properties": {
        "id": { "type": "string" },
        "null_hypothesis": { "type": "string" },
        "threshold": { "type": "number" },
        "actual": { "type": "number" },
        "confidence_interval": { "$ref": "#/$defs/Interval" },
        "conditions": { "type": "array", "items": { "$ref": "#/$defs/Condition" } },
        "falsifiability_score": { "type": "number", "minimum": 0, "maximum": 25 },
        "falsified": { "type": "boolean" }
      }
    },
    "GateResult": {
      "type": "object",
      "required": ["status", "score"],
      "properties": {
        "status": { "type": "string", "enum": ["passed", "failed"] },
        "score": { "type": "number", "minimum": 0, "maximum": 25 },
        "reason": { "type": "string" },
        "hypothesis_id": { "type": "string" }
      }
    }
  }
}`
