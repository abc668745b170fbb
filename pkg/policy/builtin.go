package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		projectPathsPolicy(),
		dependencyNamesPolicy(),
	}
}

// projectPathsPolicy keeps input and context references inside the project.
func projectPathsPolicy() Policy {
	return Policy{
		Name:        "project-paths",
		Description: "Input and context file references must stay inside the project",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package cascade.policies.paths

deny contains violation if {
	some ref in input.files
	absolute(ref.path)
	violation := {
		"message": sprintf("%s entry '%s' must be relative to the project root", [ref.key, ref.path]),
		"severity": "error",
	}
}

deny contains violation if {
	some ref in input.files
	not absolute(ref.path)
	escapes(ref.clean)
	violation := {
		"message": sprintf("%s entry '%s' escapes the project root", [ref.key, ref.path]),
		"severity": "error",
	}
}

absolute(path) if startswith(path, "/")

absolute(path) if startswith(path, "\\")

absolute(path) if regex.match("^[A-Za-z]:", path)

escapes(path) if path == ".."

escapes(path) if startswith(path, "../")
`,
	}
}

// dependencyNamesPolicy rejects dependency names that cannot be workflows.
func dependencyNamesPolicy() Policy {
	return Policy{
		Name:        "dependency-names",
		Description: "Dependencies must name workflows, not paths",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package cascade.policies.dependencies

deny contains violation if {
	some dep in input.dependencies
	regex.match("[/\\\\]|^\\.", dep)
	violation := {
		"message": sprintf("dependency '%s' is not a workflow name", [dep]),
		"severity": "error",
	}
}
`,
	}
}
