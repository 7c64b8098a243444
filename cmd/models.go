package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/nncert/nncert/corpus"
	"github.com/nncert/nncert/format"
)

func ModelsHandler(cmd *cobra.Command, args []string) error {
	filter, _ := cmd.Flags().GetString("filter")
	models := filterModels(corpus.All(), filter)
	if len(models) == 0 {
		if _, err := corpus.Get(filter); err != nil {
			return err
		}
		return fmt.Errorf("no corpus models match %q", filter)
	}

	var data [][]string
	for _, m := range models {
		var size int64
		for i := range m.Operands {
			size += int64(m.Operands[i].ByteSize())
		}

		var notes []string
		if m.IsRelaxed {
			notes = append(notes, "relaxed")
		}
		if m.ExpectFailure {
			notes = append(notes, "expects rejection")
		}

		data = append(data, []string{
			m.Name,
			strconv.Itoa(len(m.Operations)),
			strconv.Itoa(len(m.InputIndexes)),
			strconv.Itoa(len(m.OutputIndexes)),
			format.HumanBytes(size),
			strings.Join(notes, ", "),
		})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"NAME", "OPS", "INPUTS", "OUTPUTS", "SIZE", "NOTES"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}
