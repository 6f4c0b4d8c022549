package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jhapran/OCR-Form-Tools/pkg/labeling"
	"github.com/jhapran/OCR-Form-Tools/pkg/orchestrate"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workflow status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var status orchestrate.Status
		if err := newClient().getJSON("/status", &status); err != nil {
			return err
		}
		if outputFmt == "json" {
			return printJSON(status)
		}
		fmt.Printf("busy: %v\n", status.Busy)
		fmt.Printf("recognition: %v\n", status.RunningRecognition)
		fmt.Printf("auto-label batch: %v\n", status.RunningAutoLabelBatch)
		fmt.Printf("single auto-label: %v\n", status.RunningSingleAutoLabel)
		for _, ev := range status.RecentErrors {
			fmt.Printf("error: %s: %s\n", ev.Title, ev.Message)
		}
		return nil
	},
}

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "List the asset roster",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Assets []labeling.Asset `json:"assets"`
		}
		if err := newClient().getJSON("/assets", &resp); err != nil {
			return err
		}
		if outputFmt == "json" {
			return printJSON(resp.Assets)
		}
		rows := make([][]string, len(resp.Assets))
		for i, a := range resp.Assets {
			rows[i] = []string{a.ID, a.Name, string(a.Type), string(a.State), string(a.LabelingState)}
		}
		printTable([]string{"ID", "NAME", "TYPE", "STATE", "LABELING"}, rows)
		return nil
	},
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List tag definitions and document counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Tags []labeling.Tag `json:"tags"`
		}
		if err := newClient().getJSON("/tags", &resp); err != nil {
			return err
		}
		if outputFmt == "json" {
			return printJSON(resp.Tags)
		}
		rows := make([][]string, len(resp.Tags))
		for i, t := range resp.Tags {
			rows[i] = []string{t.Name, string(t.Type), string(t.Format), strconv.Itoa(t.DocumentCount)}
		}
		printTable([]string{"NAME", "TYPE", "FORMAT", "DOCUMENTS"}, rows)
		return nil
	},
}

var ocrForce bool

var ocrCmd = &cobra.Command{
	Use:   "ocr",
	Short: "Start text recognition over unvisited assets",
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{"force": ocrForce}
		var resp map[string]any
		if err := newClient().postJSON("/ocr:run", body, &resp); err != nil {
			return err
		}
		fmt.Println("recognition started")
		return nil
	},
}

var autolabelCmd = &cobra.Command{
	Use:   "autolabel [assetId]",
	Short: "Start the next auto-label batch, or auto-label a single asset",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		if len(args) == 1 {
			if err := client.postJSON("/assets/"+args[0]+":autolabel", nil, nil); err != nil {
				return err
			}
			fmt.Printf("asset %s labeled\n", args[0])
			return nil
		}
		if err := client.postJSON("/autolabel:run", nil, nil); err != nil {
			return err
		}
		fmt.Println("auto-label batch started")
		return nil
	},
}

func init() {
	ocrCmd.Flags().BoolVar(&ocrForce, "all", false, "Recognize all assets, including previously visited")
}
