package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/errors"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

var checkCmd = &cobra.Command{
	Use:   "check FILE...",
	Short: "Validate template syntax and frontmatter",
	Long: `Parse each template and validate its frontmatter. With --vars, also
report declared variables the file does not provide.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("vars", "", "YAML or JSON file of variables to check declarations against")
	checkCmd.Flags().String("root", "", "Template library root (default: directory of each FILE)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	varsFile, _ := cmd.Flags().GetString("vars")
	root, _ := cmd.Flags().GetString("root")

	vars, err := loadVariablesFile(varsFile)
	if err != nil {
		return err
	}

	failed := 0
	for _, file := range args {
		missing, err := checkFile(file, root, vars, varsFile != "")
		switch {
		case err != nil:
			failed++
			pterm.Error.Printf("%s: %v\n", file, err)
			if hint := errors.FlattenHints(err); hint != "" {
				pterm.Info.Println(hint)
			}
		case len(missing) > 0:
			pterm.Warning.Printf("%s: missing variables %v\n", file, missing)
		default:
			pterm.Success.Println(file)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d templates failed", failed, len(args))
	}
	return nil
}

// checkFile parses file and, when withVars is set, lists the declared
// variables vars does not provide.
func checkFile(file, root string, vars map[string]types.Value, withVars bool) ([]string, error) {
	lib, name, err := openLibrary(file, root)
	if err != nil {
		return nil, err
	}
	tmpl, err := lib.Load(name)
	if err != nil {
		return nil, err
	}
	if !withVars {
		return nil, nil
	}
	return tmpl.Doc.MissingVariables(vars), nil
}
