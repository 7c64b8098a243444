package cmd

import (
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/nncert/nncert/hal"
)

func DevicesHandler(cmd *cobra.Command, args []string) error {
	var data [][]string
	for _, name := range hal.Drivers() {
		status := "ok"
		if _, err := hal.Open(name); err != nil {
			status = err.Error()
		}
		data = append(data, []string{name, status})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"NAME", "STATUS"})
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
