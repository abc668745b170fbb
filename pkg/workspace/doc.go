// Package workspace maps a cascade project on disk to the pieces the engine
// works with.
//
// A project is any directory containing a .cascade directory:
//
//	<project>/.cascade/
//	    config.yaml | config.cue        project tier
//	    policies/*.rego                 admission policies
//	    history.db                      run history
//	    workflows/<id>/
//	        config.yaml | config.cue    workflow tier
//	        task.md                     task specification
//	        output.<output_format>      workflow output
//	        execution.json              execution record
//
// The global tier lives in $CASCADE_CONFIG_HOME, or the user configuration
// directory. Every enclosing directory above the project root that has its
// own .cascade/config file contributes an ancestor tier.
package workspace
