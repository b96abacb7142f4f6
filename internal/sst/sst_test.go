package sst

import (
	"reflect"
	"testing"
)

func TestArgv(t *testing.T) {
	tool := Tool{}
	cases := []struct {
		name string
		got  []string
		want []string
	}{
		{"dev", tool.Dev(), []string{"sst", "dev"}},
		{"deploy staged", tool.Deploy("production"), []string{"sst", "deploy", "--stage", "production"}},
		{"deploy default", tool.Deploy(""), []string{"sst", "deploy"}},
		{"diff", tool.Diff("dev"), []string{"sst", "diff", "--stage", "dev"}},
		{"secret set", tool.SecretSet("DB_URL", "postgres://x", "dev"), []string{"sst", "secret", "set", "DB_URL", "postgres://x", "--stage", "dev"}},
		{"secret list", tool.SecretList(""), []string{"sst", "secret", "list"}},
		{"secret remove", tool.SecretRemove("DB_URL", "dev"), []string{"sst", "secret", "remove", "DB_URL", "--stage", "dev"}},
		{"unlock", tool.Unlock("dev"), []string{"sst", "unlock", "--stage", "dev"}},
	}
	for _, tc := range cases {
		if !reflect.DeepEqual(tc.got, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, tc.got, tc.want)
		}
	}
}

func TestCustomBinary(t *testing.T) {
	tool := Tool{Bin: "/opt/sst/bin/sst"}
	if got := tool.Dev()[0]; got != "/opt/sst/bin/sst" {
		t.Fatalf("custom binary ignored: %s", got)
	}
}
