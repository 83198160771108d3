package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mgpai22/vidgen/internal/template"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the available layout templates",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(renderTable(
			[]string{"ID", "Layout", "Secondary", "Description"},
			templateRows(template.All()),
			nil,
		))
	},
}

func init() {
	rootCmd.AddCommand(templatesCmd)
}

func templateRows(descs []template.Descriptor) [][]string {
	rows := make([][]string, 0, len(descs))
	for _, d := range descs {
		secondary := "no"
		if d.NeedsSecondary() {
			secondary = "required"
		}
		rows = append(rows, []string{d.ID, d.Layout.String(), secondary, d.Description})
	}
	return rows
}
