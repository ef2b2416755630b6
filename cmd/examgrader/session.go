package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pavelanni/examgrader/internal/results"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Create, list and delete exam sessions",
	}

	create := &cobra.Command{
		Use:   "create <subject> [grade]",
		Short: "Create an exam session",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runSessionCreate,
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List exam sessions",
		Args:  cobra.NoArgs,
		RunE:  runSessionList,
	}
	del := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and all of its scores",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionDelete,
	}
	del.Flags().Bool("yes", false, "Confirm deletion")

	for _, c := range []*cobra.Command{create, list, del} {
		addStoreFlags(c.Flags())
		addLogFlags(c.Flags())
		cmd.AddCommand(c)
	}
	return cmd
}

func runSessionCreate(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer db.Close()

	grade := ""
	if len(args) > 1 {
		grade = args[1]
	}
	sess, err := db.Create(cmd.Context(), args[0], grade)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), sess.ID)
	return nil
}

func runSessionList(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := db.All(cmd.Context())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSUBJECT\tGRADE\tKEY\tSHEETS\tREVIEW\tCREATED")
	for _, s := range sessions {
		key := "-"
		if s.MasterConfig != nil {
			key = fmt.Sprintf("%d questions", len(s.MasterConfig.CorrectAnswers))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			s.ID, s.SubjectName, s.GradeLevel, key,
			len(s.StudentRecords), results.ReviewCount(s.StudentRecords),
			s.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func runSessionDelete(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	if !v.GetBool("yes") {
		fmt.Fprintln(os.Stderr, "refusing to delete without --yes: this removes the session and all of its scores")
		return fmt.Errorf("deletion not confirmed")
	}

	db, err := openStore(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Delete(cmd.Context(), args[0])
}
