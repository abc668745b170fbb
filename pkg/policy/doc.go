// Package policy admits workflows for execution using Open Policy Agent.
//
// Every policy is a Rego module whose package defines a deny set. Each deny
// entry is either a message string or an object with "message" and
// "severity". Violations with severity error or critical deny admission;
// others are logged as warnings.
//
// Policies see the workflow as input:
//
//	{
//	  "workflow": "draft",
//	  "config": {"model": "...", "temperature": 1, "input_files": ["data/a.txt"], ...},
//	  "dependencies": ["outline"],
//	  "files": [{"key": "input_files", "path": "data/a.txt", "clean": "data/a.txt"}],
//	  "context": {"timestamp": "...", "operation": "execute"}
//	}
//
// Built-in policies keep file references inside the project and dependency
// names free of path syntax. Project policies live in .cascade/policies as
// .rego files, or .json files carrying a Policy document:
//
//	package cascade.policies.models
//
//	deny contains msg if {
//		input.config.model == "expensive-model"
//		msg := "expensive-model is not allowed in this project"
//	}
package policy
