// Package preprocess defines preprocessor entries and the registry that
// picks one per file.
//
// An Entry pairs a Matcher with a Transformer. Entries are kept in load
// order and the first entry whose matcher accepts a file claims it:
//
//	reg, err := preprocess.Load(ctx, preprocess.Static(
//	    preprocess.Entry{
//	        Name:        "dicom-deid",
//	        Matcher:     preprocess.MatchExtensions(".dcm"),
//	        Transformer: deid,
//	    },
//	    preprocess.Entry{
//	        Name:        "redact-text",
//	        Matcher:     preprocess.MatchExtensions(".txt", ".log"),
//	        Transformer: preprocess.Redact(preprocess.NewRedactor(true, nil)),
//	    },
//	), logger)
//
//	entry, ok := reg.Select(ctx, file)
//
// Entries come from a Source: Static for entries linked into the binary,
// Defaults when nothing is configured, or the manifest package for
// preprocessors declared in YAML or TOML and backed by WASM modules,
// external commands, or the built-ins in this package.
//
// A transformer signals a policy rejection by failing with a message that
// contains PolicyRejectionMessage, or by returning Reject.
//
// Built-in redaction can be configured via ~/.sift.yaml:
//
//	redaction:
//	  patterns:
//	    - ipv4
//	    - email
//	    - phone
package preprocess
