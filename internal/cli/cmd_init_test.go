package cli_test

import (
	"testing"

	"github.com/calvinalkan/twophase/internal/cli"
)

func Test_Init_Writes_Default_Config(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("init")

	cli.AssertContains(t, stdout, "wrote .tpf.json")

	content := c.ReadFile(".tpf.json")
	cli.AssertContains(t, content, `"perm": "0644"`)
}

func Test_Init_Refuses_To_Overwrite(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile(".tpf.json", `{"perm": "0600"}`)

	stderr := c.MustFail("init")
	cli.AssertContains(t, stderr, "config file already exists")

	// Existing config is untouched
	content := c.ReadFile(".tpf.json")
	cli.AssertContains(t, content, "0600")
}

func Test_PrintConfig_Shows_Resolved_Values(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile(".tpf.json", `{"perm": "0600"}`)

	stdout := c.MustRun("print-config")

	cli.AssertContains(t, stdout, `"perm": "0600"`)
	cli.AssertContains(t, stdout, "# Sources:")
	cli.AssertContains(t, stdout, "#   project:")
}

func Test_PrintConfig_Reports_Defaults_Only(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("print-config")

	cli.AssertContains(t, stdout, `"perm": "0644"`)
	cli.AssertContains(t, stdout, "(using defaults only)")
}
