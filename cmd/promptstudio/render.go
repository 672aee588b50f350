package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/errors"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/logger"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/prompt"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/runtime"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/sections"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

var renderCmd = &cobra.Command{
	Use:   "render FILE",
	Short: "Render a template to stdout",
	Long: `Render a template file. render_file and render_dir resolve relative to
--root, which defaults to the directory of FILE.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var sectionsCmd = &cobra.Command{
	Use:   "sections FILE",
	Short: "Split rendered text into chat messages",
	Long:  "Split already rendered text into chat messages. FILE \"-\" reads stdin.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSections,
}

func init() {
	renderCmd.Flags().String("vars", "", "YAML or JSON file of variables")
	renderCmd.Flags().StringArray("block", nil, "Block override as name=text (repeatable)")
	renderCmd.Flags().String("base", "", "Base template FILE's blocks are rendered into")
	renderCmd.Flags().String("root", "", "Template library root (default: directory of FILE)")
	renderCmd.Flags().Bool("messages", false, "Print chat messages instead of text")
	renderCmd.Flags().StringP("output", "o", "json", "Messages format: json or yaml")

	sectionsCmd.Flags().StringP("output", "o", "json", "Messages format: json or yaml")
}

func newRenderer() *runtime.Renderer {
	r := runtime.NewRenderer()
	if cfg != nil {
		r.MaxIncludeDepth = cfg.MaxIncludeDepth
	}
	return r
}

// openLibrary returns a library rooted at root, or at file's directory when
// root is empty, and file's name within it.
func openLibrary(file, root string) (*prompt.Library, string, error) {
	if root == "" {
		root = filepath.Dir(file)
	}
	lib, err := prompt.NewLibrary(root, newRenderer())
	if err != nil {
		return nil, "", err
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, "", errors.Wrapf(err, "resolving %s", file)
	}
	rel, err := filepath.Rel(lib.Root(), abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, "", errors.WithHint(
			errors.Wrapf(errors.ErrInvalidRequest, "%s is outside %s", file, lib.Root()),
			"pass --root with a directory containing the template")
	}
	return lib, filepath.ToSlash(rel), nil
}

func loadVariablesFile(path string) (map[string]types.Value, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading variables")
	}
	vars, err := prompt.LoadVariables(data)
	if err != nil {
		return nil, errors.Wrapf(err, "variables file %s", path)
	}
	return vars, nil
}

// parseBlocks turns name=text pairs into a blocks table.
func parseBlocks(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	blocks := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, text, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.Wrapf(errors.ErrInvalidRequest, "--block %q: expected name=text", p)
		}
		blocks[name] = text
	}
	return blocks, nil
}

func runRender(cmd *cobra.Command, args []string) error {
	varsFile, _ := cmd.Flags().GetString("vars")
	blockPairs, _ := cmd.Flags().GetStringArray("block")
	base, _ := cmd.Flags().GetString("base")
	root, _ := cmd.Flags().GetString("root")
	asMessages, _ := cmd.Flags().GetBool("messages")
	format, _ := cmd.Flags().GetString("output")

	vars, err := loadVariablesFile(varsFile)
	if err != nil {
		return err
	}
	blocks, err := parseBlocks(blockPairs)
	if err != nil {
		return err
	}
	lib, name, err := openLibrary(args[0], root)
	if err != nil {
		return err
	}

	log := logger.Named("render")
	if tmpl, err := lib.Load(name); err == nil {
		if missing := tmpl.Doc.MissingVariables(vars); len(missing) > 0 {
			log.Warnw("template variables not provided", "template", name, "missing", missing)
		}
	}

	rc := lib.Context(vars, blocks)
	var out string
	if base != "" {
		baseName := base
		if _, rel, err := openLibrary(base, lib.Root()); err == nil {
			baseName = rel
		}
		out, err = lib.Compose(cmd.Context(), baseName, name, rc)
	} else {
		out, err = lib.Render(cmd.Context(), name, rc)
	}
	if err != nil {
		return err
	}

	if asMessages {
		return writeMessages(cmd.OutOrStdout(), sections.Parse(out), format)
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	if !strings.HasSuffix(out, "\n") {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}

func runSections(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output")

	var data []byte
	var err error
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return errors.Wrapf(err, "reading %s", args[0])
	}
	return writeMessages(cmd.OutOrStdout(), sections.Parse(string(data)), format)
}

func writeMessages(w io.Writer, msgs []sections.ChatMessage, format string) error {
	switch strings.ToLower(format) {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(msgs)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(msgs); err != nil {
			return err
		}
		return enc.Close()
	}
	return errors.Wrapf(errors.ErrInvalidRequest, "unknown output format %q", format)
}
