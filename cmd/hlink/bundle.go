package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lacpass/healthlink/pkg/fhir"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [file|-]",
	Short: "Classify a FHIR Bundle by profile",
	Long: `Report which workflow a FHIR Bundle enables, based on meta.profile.

A patient summary can be shared as a VHL; an ICVP bundle produces one
vaccination certificate per immunization.

Examples:
  hlink classify summary.json
  cat icvp.json | hlink classify --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClassify,
}

var summaryCmd = &cobra.Command{
	Use:   "summary [file|-]",
	Short: "Summarize a clinical document bundle",
	Long: `Print the title, patient, sections, resource counts and timeline of a
clinical document bundle.

Examples:
  hlink summary ips.json
  hlink summary ips.json --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSummary,
}

func argOrEmpty(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func runClassify(cmd *cobra.Command, args []string) error {
	b, err := readBundle(cmd, argOrEmpty(args))
	if err != nil {
		return err
	}
	c := fhir.Classify(b)
	if jsonOutput {
		return printJSON(cmd, struct {
			fhir.Classification
			Workflow fhir.Workflow `json:"workflow"`
		}{c, c.Workflow()})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Workflow:                %s\n", c.Workflow())
	fmt.Fprintf(w, "Summary document:        %t\n", c.SummaryDocument)
	fmt.Fprintf(w, "Vaccination certificate: %t\n", c.VaccinationCertificate)
	return nil
}

func runSummary(cmd *cobra.Command, args []string) error {
	b, err := readBundle(cmd, argOrEmpty(args))
	if err != nil {
		return err
	}
	s := fhir.Summarize(b)
	if jsonOutput {
		return printJSON(cmd, s)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Title:    %s\n", s.Title)
	if s.Timestamp != "" {
		fmt.Fprintf(w, "Date:     %s\n", s.Timestamp)
	}
	fmt.Fprintf(w, "Workflow: %s\n", s.Classification.Workflow())
	if p := s.Patient; p != nil {
		fmt.Fprintln(w, "Patient:")
		printField(w, "Name", p.Name)
		printField(w, "Identifier", p.Identifier)
		printField(w, "Birth date", p.BirthDate)
		printField(w, "Gender", p.Gender)
	}

	if len(s.Sections) > 0 {
		fmt.Fprintln(w, "Sections:")
		for _, sec := range s.Sections {
			fmt.Fprintf(w, "  %s\n", sec.Title)
			if sec.Text != "" {
				fmt.Fprintf(w, "    %s\n", strings.ReplaceAll(sec.Text, "\n", "\n    "))
			}
		}
	}

	fmt.Fprintln(w, "Resources:")
	types := make([]string, 0, len(s.ResourceCounts))
	for t := range s.ResourceCounts {
		types = append(types, t)
	}
	sort.Strings(types)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, t := range types {
		fmt.Fprintf(tw, "  %s\t%d\n", t, s.ResourceCounts[t])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(s.Events) > 0 {
		fmt.Fprintln(w, "Timeline:")
		for _, e := range s.Events {
			fmt.Fprintf(w, "  %s  %-20s %s\n", e.Date.Format("2006-01-02"), e.ResourceType, e.Label)
		}
	}
	return nil
}

func printField(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "  %-11s %s\n", label+":", value)
}
