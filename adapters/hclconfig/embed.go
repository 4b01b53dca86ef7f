package hclconfig

import _ "embed"

// Example is a complete pricing file, written by "config init"
//
//go:embed example.hcl
var Example []byte
