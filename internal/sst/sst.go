// Package sst builds argument vectors for the sst CLI. It knows nothing
// about execution; callers hand the argv to the executor or supervisor.
package sst

// Tool names the sst binary. The zero value uses "sst" from PATH.
type Tool struct {
	Bin string
}

func (t Tool) bin() string {
	if t.Bin == "" {
		return "sst"
	}
	return t.Bin
}

// Dev is the fixed argument set that puts sst into continuous development
// mode; it is deliberately not configurable.
func (t Tool) Dev() []string { return []string{t.bin(), "dev"} }

func (t Tool) Deploy(stage string) []string { return t.staged("deploy", stage) }

func (t Tool) Diff(stage string) []string { return t.staged("diff", stage) }

func (t Tool) Refresh(stage string) []string { return t.staged("refresh", stage) }

func (t Tool) Remove(stage string) []string { return t.staged("remove", stage) }

func (t Tool) Unlock(stage string) []string { return t.staged("unlock", stage) }

func (t Tool) SecretList(stage string) []string {
	return appendStage([]string{t.bin(), "secret", "list"}, stage)
}

func (t Tool) SecretSet(name, value, stage string) []string {
	return appendStage([]string{t.bin(), "secret", "set", name, value}, stage)
}

func (t Tool) SecretRemove(name, stage string) []string {
	return appendStage([]string{t.bin(), "secret", "remove", name}, stage)
}

func (t Tool) staged(sub, stage string) []string {
	return appendStage([]string{t.bin(), sub}, stage)
}

func appendStage(argv []string, stage string) []string {
	if stage != "" {
		argv = append(argv, "--stage", stage)
	}
	return argv
}
