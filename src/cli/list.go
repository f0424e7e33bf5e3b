package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"unraid-backup/src/domain"
	"unraid-backup/src/vmbackup"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).Align(lipgloss.Center)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func newListCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "list [domain-id...]",
		Short: "List finalized VM backups per domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, stdout, stderr)
			if err != nil {
				return err
			}
			if !s.cfg.HasVMBackup {
				return fmt.Errorf("no [VMBackup] section in configuration")
			}
			entries, err := selectDomains(s.cfg.Domains, args)
			if err != nil {
				return err
			}
			svc := vmbackup.New(s.runner, s.cfg.VMBackup, s.log)

			var rows [][]string
			for _, e := range entries {
				records, err := svc.Records(domain.Domain{ID: e.ID, Name: e.Name})
				if err != nil {
					return err
				}
				for _, rec := range records {
					rows = append(rows, []string{
						e.ID,
						rec.Time.Format("2006-01-02 15:04:05"),
						fileSize(filepath.Join(s.cfg.VMBackup.BackupDir, rec.Name)),
						rec.Name,
					})
				}
			}
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "No backups found in", s.cfg.VMBackup.BackupDir)
				return nil
			}
			fmt.Fprintln(stdout, renderTable([]string{"DOMAIN", "TIME", "SIZE", "FILE"}, rows))
			return nil
		},
	}
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

func fileSize(path string) string {
	fi, err := os.Stat(path)
	if err != nil {
		return "?"
	}
	return units.HumanSize(float64(fi.Size()))
}
