// Package template renders the cluster environment and cluster compute
// files of a release test before they are parsed as YAML.
//
// Templates use Go text/template syntax with the sprig function library:
//
//	base_image: {{ .Env.BASE_IMAGE | default "anyscale/ray:nightly" }}
//	post_build_cmds:
//	  - pip install -U {{ .WheelsURL }}
//
// Data passed to templates is built with MergeContexts; the config loader
// provides Env, WheelsURL, TestName, SmokeTest and ProjectID.
package template
