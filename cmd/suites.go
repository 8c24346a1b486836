package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"grimm.is/bootcheck/internal/suite"
)

// RunSuites lists the defined suites and their cases.
func RunSuites() error {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "SUITE\tCASES")
	for _, name := range suite.Names() {
		specs, err := suite.Cases(name)
		if err != nil {
			return err
		}
		var names []string
		for _, s := range specs {
			label := s.Name
			if s.Interactive {
				label += " (skipped when unattended)"
			}
			names = append(names, label)
		}
		fmt.Fprintf(w, "%s\t%s\n", name, strings.Join(names, ", "))
	}
	return w.Flush()
}
