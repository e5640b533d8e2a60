package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"SceneToVideo-server/service"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// generate 不经过队列，在当前进程内同步生成
func generate(a *app) *cobra.Command {
	var (
		projectID string
		sceneID   string
		force     bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "generate scene videos of a project synchronously",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(setupLogger(a.cfg), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			d, err := wire(a.cfg)
			if err != nil {
				return err
			}

			if sceneID != "" {
				scene, err := d.store.GetScene(ctx, sceneID)
				if err != nil {
					return fmt.Errorf("load scene %s: %w", sceneID, err)
				}
				shots, err := d.store.ListShots(ctx, scene.ID)
				if err != nil {
					return err
				}
				characters, err := d.store.ListCharacters(ctx, scene.ProjectId)
				if err != nil {
					return err
				}
				ids, err := d.engine.GenerateSceneVideo(ctx, *scene, shots, characters)
				if err != nil {
					return err
				}
				zerolog.Ctx(ctx).Info().Strs("task_ids", ids).Msg("scene generated")
				return nil
			}

			scenes, err := d.store.ListScenes(ctx, projectID)
			if err != nil {
				return fmt.Errorf("list scenes of project %s: %w", projectID, err)
			}
			result := service.Summarize(projectID, d.engine.BatchGenerateProject(ctx, scenes, force))
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			if result.Failed > 0 {
				return fmt.Errorf("%d of %d scenes failed", result.Failed, len(scenes))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&sceneID, "scene", "", "generate only this scene")
	cmd.Flags().BoolVar(&force, "force", false, "regenerate scenes that are already completed")
	cmd.MarkFlagsOneRequired("project", "scene")
	return cmd
}
