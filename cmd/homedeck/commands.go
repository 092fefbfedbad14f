package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jask/homedeck/internal/config"
	"github.com/jask/homedeck/internal/host"
	"github.com/jask/homedeck/internal/placement"
	"github.com/jask/homedeck/internal/tui"
)

func runTUI(ctx context.Context, e *env) error {
	app := tui.New(ctx, e.model, tui.Services{
		Placement:   e.placements,
		Maintenance: e.maintenance,
	}, e.registry.Providers())
	_, err := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

// pageFlag reads a 1-based --page flag and returns the page index.
func pageFlag(cmd *cobra.Command) int {
	p, _ := cmd.Flags().GetInt("page")
	return p - 1
}

func addPageFlag(cmd *cobra.Command) {
	cmd.Flags().IntP("page", "p", 1, "page number (1-based)")
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid widget id %q", s)
	}
	return id, nil
}

func parsePage(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid page %q", s)
	}
	return p - 1, nil
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show widgets on every page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				out := cmd.OutOrStdout()
				if verbose && e.cfg.Store.Driver == config.DriverSQLite {
					snap, err := e.snapshots.Get(ctx)
					if err != nil {
						return err
					}
					if snap != nil {
						fmt.Fprintf(out, "revision %s (%s)\n", snap.Revision, snap.UpdatedAt)
					}
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PAGE\tID\tPROVIDER\tPOS\tSIZE")
				for _, st := range e.model.Pages() {
					for _, w := range st.Widgets {
						fmt.Fprintf(tw, "%d\t%d\t%s\t%d,%d\t%dx%d\n",
							st.Index+1, w.WidgetID, w.Provider, w.Position.X, w.Position.Y, w.Size.Width, w.Size.Height)
					}
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				for _, st := range e.model.Pages() {
					if len(st.VisibleApps) > 0 {
						fmt.Fprintf(out, "page %d apps: %s\n", st.Index+1, strings.Join(st.VisibleApps, ", "))
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func newAddCmd() *cobra.Command {
	var x, y, width, height int
	cmd := &cobra.Command{
		Use:   "add PROVIDER",
		Short: "Allocate a widget id and place PROVIDER on a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				ref, err := placement.ParseProviderRef(args[0])
				if err != nil {
					return err
				}
				rec, err := e.placements.Place(ctx, ref, pageFlag(cmd),
					placement.Position{X: x, Y: y}, placement.Size{Width: width, Height: height})
				if err != nil {
					if errors.Is(err, host.ErrProviderUnavailable) {
						if s, ok := e.registry.Suggest(args[0]); ok {
							return fmt.Errorf("%w (did you mean %s?)", err, s)
						}
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s as widget %d on page %d\n", rec.Provider, rec.WidgetID, rec.Page+1)
				return nil
			})
		},
	}
	addPageFlag(cmd)
	cmd.Flags().IntVar(&x, "x", 0, "grid column")
	cmd.Flags().IntVar(&y, "y", 0, "grid row")
	cmd.Flags().IntVar(&width, "width", 1, "width in cells")
	cmd.Flags().IntVar(&height, "height", 1, "height in cells")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove ID",
		Short: "Remove a widget and return its id to the host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				return e.model.RemoveWidget(ctx, id, pageFlag(cmd))
			})
		},
	}
	addPageFlag(cmd)
	return cmd
}

func newMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move ID FROM TO",
		Short: "Move a widget to the end of another page",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			from, err := parsePage(args[1])
			if err != nil {
				return err
			}
			to, err := parsePage(args[2])
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				return e.model.MoveWidget(ctx, id, from, to)
			})
		},
	}
}

func newSwapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swap A B",
		Short: "Exchange two widgets on a page",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := parseID(args[0])
			if err != nil {
				return err
			}
			b, err := parseID(args[1])
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				return e.model.SwapWidgets(ctx, a, b, pageFlag(cmd))
			})
		},
	}
	addPageFlag(cmd)
	return cmd
}

func newResizeCmd() *cobra.Command {
	var width, height int
	cmd := &cobra.Command{
		Use:   "resize ID",
		Short: "Set a widget's size in cells",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				return e.model.ResizeWidget(ctx, id, pageFlag(cmd), width, height)
			})
		},
	}
	addPageFlag(cmd)
	cmd.Flags().IntVar(&width, "width", 1, "width in cells")
	cmd.Flags().IntVar(&height, "height", 1, "height in cells")
	return cmd
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile stored placements with the host and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				r := e.report
				fmt.Fprintf(cmd.OutOrStdout(), "loaded %d, kept %d, dropped %d, clamped %d, resized %d, reclaimed %d\n",
					r.Loaded, r.Kept, r.Dropped, r.Clamped, r.Resized, r.Reclaimed)
				if r.TimedOut {
					return fmt.Errorf("host did not answer within %s", e.cfg.Reconcile.Timeout)
				}
				return nil
			})
		},
	}
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear every page and reclaim all widget ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				return e.maintenance.Reset(ctx)
			})
		},
	}
}

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List installed widget providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				for _, p := range e.registry.Providers() {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			})
		},
	}
}

func newRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke ID",
		Short: "Invalidate a widget id on the host; the next start drops its placement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				return e.registry.Revoke(ctx, id)
			})
		},
	}
}
