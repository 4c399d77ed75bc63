package cmd

import "testing"

func TestCommandsForDefaultsToEveryTool(t *testing.T) {
	cmds := commandsFor(nil)
	want := map[string]bool{"npm": true, "npx": true, "pnpm": true, "pnpx": true, "yarn": true, "yarnpkg": true}
	if len(cmds) != len(want) {
		t.Fatalf("expected %d commands, got %v", len(want), cmds)
	}
	for _, c := range cmds {
		if !want[c] {
			t.Fatalf("unexpected command %s", c)
		}
	}
}

func TestCommandsForFiltersByFamily(t *testing.T) {
	cmds := commandsFor([]string{"pnpm"})
	if len(cmds) != 2 || cmds[0] != "pnpm" || cmds[1] != "pnpx" {
		t.Fatalf("unexpected commands: %v", cmds)
	}
}

func TestCommandsForDedupesYarnAliases(t *testing.T) {
	cmds := commandsFor([]string{"yarn", "yarnpkg"})
	if len(cmds) != 2 {
		t.Fatalf("expected deduped yarn/yarnpkg, got %v", cmds)
	}
}
