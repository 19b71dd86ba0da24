package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xela07ax/proctor/internal/domain"
)

var (
	hallOpts    domain.Hall
	cameraOpts  domain.Camera
	studentOpts domain.Student
)

var hallCmd = &cobra.Command{Use: "hall", Short: "Manage exam halls"}

var hallAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a hall",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := DB.CreateHall(cmd.Context(), hallOpts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "hall %d: %s\n", h.ID, h.Location())
		return nil
	},
}

var hallListCmd = &cobra.Command{
	Use:   "list",
	Short: "List halls and their cameras",
	RunE: func(cmd *cobra.Command, args []string) error {
		halls, err := DB.ListHalls(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, h := range halls {
			state := "off"
			if h.DetectionEnabled {
				state = "on"
			}
			fmt.Fprintf(out, "%d\t%s\tdetection=%s\n", h.ID, h.Location(), state)
			cams, err := DB.ListHallCameras(cmd.Context(), h.ID)
			if err != nil {
				return err
			}
			for _, c := range cams {
				fmt.Fprintf(out, "\tcamera %d\t%s\t%s\n", c.ID, c.Name, c.Source())
			}
		}
		return nil
	},
}

var cameraCmd = &cobra.Command{Use: "camera", Short: "Manage cameras"}

var cameraAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a camera in a hall",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := DB.GetHall(cmd.Context(), cameraOpts.HallID); err != nil {
			return fmt.Errorf("hall %d: %w", cameraOpts.HallID, err)
		}
		c, err := DB.CreateCamera(cmd.Context(), cameraOpts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "camera %d in hall %d\n", c.ID, c.HallID)
		return nil
	},
}

var studentCmd = &cobra.Command{Use: "student", Short: "Manage the student roster"}

var studentAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or update a student",
	RunE: func(cmd *cobra.Command, args []string) error {
		if studentOpts.Identity == "" {
			return fmt.Errorf("--id is required")
		}
		if err := DB.UpsertStudent(cmd.Context(), studentOpts); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "student %s saved\n", studentOpts.Identity)
		return nil
	},
}

func init() {
	hallAddCmd.Flags().StringVar(&hallOpts.Name, "name", "", "hall name")
	hallAddCmd.Flags().StringVar(&hallOpts.Floor, "floor", "", "floor")
	hallAddCmd.MarkFlagRequired("name")
	hallCmd.AddCommand(hallAddCmd, hallListCmd)

	cameraAddCmd.Flags().Int64Var(&cameraOpts.HallID, "hall", 0, "hall id")
	cameraAddCmd.Flags().StringVar(&cameraOpts.Name, "name", "", "camera name")
	cameraAddCmd.Flags().StringVar(&cameraOpts.Stream, "stream", "", "live stream URL or device")
	cameraAddCmd.Flags().StringVar(&cameraOpts.VideoPath, "video", "", "recorded video or frame directory")
	cameraAddCmd.Flags().BoolVar(&cameraOpts.IsLive, "live", false, "read the live stream instead of the recording")
	cameraAddCmd.MarkFlagRequired("hall")
	cameraCmd.AddCommand(cameraAddCmd)

	studentAddCmd.Flags().StringVar(&studentOpts.Identity, "id", "", "academic id")
	studentAddCmd.Flags().StringVar(&studentOpts.Name, "name", "", "full name")
	studentAddCmd.Flags().StringVar(&studentOpts.Committee, "committee", "", "exam committee")
	studentCmd.AddCommand(studentAddCmd)

	rootCmd.AddCommand(hallCmd, cameraCmd, studentCmd)
}
