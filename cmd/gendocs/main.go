// Command gendocs renders the command reference from the registered
// commands.
package main

import (
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/spf13/pflag"

	"github.com/keshon/codi/internal/command"
	_ "github.com/keshon/codi/internal/command/all"
)

const defaultTemplate = `# codi commands

{{.CommandSections}}`

func main() {
	tplPath := pflag.StringP("template", "t", "", "template file with a {{.CommandSections}} placeholder")
	outPath := pflag.StringP("output", "o", "COMMANDS.md", "file to write")
	pflag.Parse()

	text := defaultTemplate
	if *tplPath != "" {
		b, err := os.ReadFile(*tplPath)
		if err != nil {
			fmt.Printf("Failed to read template: %v\n", err)
			os.Exit(1)
		}
		text = string(b)
	}
	tpl, err := template.New("commands").Parse(text)
	if err != nil {
		fmt.Printf("Failed to parse template: %v\n", err)
		os.Exit(1)
	}

	var sections strings.Builder
	for _, cmd := range command.AllCommands() {
		fmt.Fprintf(&sections, "### %s\n", cmd.Name())
		if aliases := cmd.Aliases(); len(aliases) > 0 {
			fmt.Fprintf(&sections, "Aliases: %s\n\n", strings.Join(aliases, ", "))
		}
		fmt.Fprintf(&sections, "```\ncodi %s\n\n%s\n```\n\n", cmd.Usage(), cmd.Help())
	}

	outFile, err := os.Create(*outPath)
	if err != nil {
		fmt.Printf("Failed to create %s: %v\n", *outPath, err)
		os.Exit(1)
	}
	defer outFile.Close()

	if err := tpl.Execute(outFile, map[string]string{"CommandSections": sections.String()}); err != nil {
		fmt.Printf("Failed to render template: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s generated\n", *outPath)
}
