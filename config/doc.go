// Package config loads solver session settings from YAML.
//
// A file only needs the keys it changes; everything else keeps the value
// from Default:
//
//	solver:
//	  n: 100
//	  pieces: 4
//	  format: csr
//	checkpoint:
//	  target: s3://my-bucket/runs/
//	  every: 5
package config
