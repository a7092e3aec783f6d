package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/drm"
	"github.com/emergingrobotics/go-hwcval/pkg/kernel"
)

type planeInfo struct {
	ID            uint32 `yaml:"id" json:"id"`
	Crtc          uint32 `yaml:"crtc" json:"crtc"`
	Fb            uint32 `yaml:"fb" json:"fb"`
	PossibleCrtcs uint32 `yaml:"possible_crtcs" json:"possible_crtcs"`
}

type connectorInfo struct {
	ID        uint32   `yaml:"id" json:"id"`
	Type      string   `yaml:"type" json:"type"`
	Connected bool     `yaml:"connected" json:"connected"`
	Modes     []string `yaml:"modes" json:"modes"`
}

// cardInfo is what probe found on one DRM card
type cardInfo struct {
	Path       string          `yaml:"path" json:"path"`
	Driver     string          `yaml:"driver,omitempty" json:"driver,omitempty"`
	Crtcs      []uint32        `yaml:"crtcs" json:"crtcs"`
	Planes     []planeInfo     `yaml:"planes" json:"planes"`
	Connectors []connectorInfo `yaml:"connectors" json:"connectors"`

	res        *drm.Resources
	planes     []*drm.ModeGetPlane
	connectors []*drm.Connector
}

func newProbeCommand(opts *rootOptions) *cobra.Command {
	var validate bool

	cmd := &cobra.Command{
		Use:   "probe [device]...",
		Short: "Query the DRM cards present on this machine",
		Long: `Query the CRTCs, planes and connectors of each DRM card. With no
device the cards under /dev/dri are scanned. With --validate the
answers are passed through the same checks an intercepted query gets.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := opts.logger(cmd.ErrOrStderr())

			paths := args
			drivers := make(map[string]string)
			if len(paths) == 0 {
				found, err := drm.Scan()
				if err != nil {
					return err
				}
				for _, c := range found {
					paths = append(paths, c.Path)
					drivers[c.Path] = c.Driver
				}
			}
			if len(paths) == 0 {
				return fmt.Errorf("no DRM cards found")
			}

			cards := make([]*cardInfo, 0, len(paths))
			for _, path := range paths {
				card, err := probeCard(path, logger)
				if err != nil {
					return err
				}
				card.Driver = drivers[path]
				cards = append(cards, card)
			}

			if !validate {
				return writeCards(cmd.OutOrStdout(), cfg.Report.Format, cards)
			}

			h, err := newHarness(cfg, logger)
			if err != nil {
				return err
			}
			merged := checks.NewResult()
			for _, card := range cards {
				k := h.newKernel(cmd.Context())
				validateCard(k, card)
				result, err := k.Shutdown()
				if err != nil {
					return err
				}
				merged.Add(result)
			}
			return h.report(cmd.OutOrStdout(), merged, "probe")
		},
	}

	cmd.Flags().BoolVar(&validate, "validate", false, "run the query checks on the answers")
	return cmd
}

func probeCard(path string, logger *slog.Logger) (*cardInfo, error) {
	dev, err := drm.OpenDevice(path)
	if err != nil {
		return nil, err
	}
	defer dev.Close()

	res, err := dev.GetResources()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	card := &cardInfo{Path: path, Crtcs: res.Crtcs, res: res}

	planeIDs, err := dev.GetPlaneResources()
	if err != nil {
		logger.Warn("plane query failed", "device", path, "error", err)
	}
	for _, id := range planeIDs {
		p, err := dev.GetPlane(id)
		if err != nil {
			logger.Warn("plane query failed", "device", path, "plane", id, "error", err)
			continue
		}
		card.planes = append(card.planes, p)
		card.Planes = append(card.Planes, planeInfo{ID: p.PlaneID, Crtc: p.CrtcID, Fb: p.FbID, PossibleCrtcs: p.PossibleCrtcs})
	}

	for _, id := range res.Connectors {
		c, err := dev.GetConnector(id)
		if err != nil {
			logger.Warn("connector query failed", "device", path, "connector", id, "error", err)
			continue
		}
		info := connectorInfo{ID: c.ID, Type: drm.ConnectorTypeName(c.Type), Connected: c.Connection == drm.Connected}
		for _, m := range c.Modes {
			s := fmt.Sprintf("%dx%d@%d", m.Hdisplay, m.Vdisplay, m.Vrefresh)
			if m.Type&drm.ModeTypePreferred != 0 {
				s += " preferred"
			}
			info.Modes = append(info.Modes, s)
		}
		card.connectors = append(card.connectors, c)
		card.Connectors = append(card.Connectors, info)
	}
	return card, nil
}

// validateCard replays the card's query answers into k. Plane types are
// not queried, so every plane is treated as an overlay.
func validateCard(k *kernel.Kernel, card *cardInfo) {
	k.CheckGetResourcesExit(card.res.Crtcs)
	ids := make([]uint32, 0, len(card.planes))
	for _, p := range card.planes {
		ids = append(ids, p.PlaneID)
	}
	k.CheckGetPlaneResourcesExit(ids)
	for _, p := range card.planes {
		k.CheckGetPlaneExit(p, drm.PlaneTypeOverlay)
	}
	for _, c := range card.connectors {
		k.CheckGetConnectorExit(c)
	}
}

func writeCards(w io.Writer, format string, cards []*cardInfo) error {
	switch format {
	case checks.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cards); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	case checks.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cards)
	}

	for _, card := range cards {
		fmt.Fprintf(w, "%s", card.Path)
		if card.Driver != "" {
			fmt.Fprintf(w, " (%s)", card.Driver)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  CRTCs: %v\n", card.Crtcs)
		for _, p := range card.Planes {
			fmt.Fprintf(w, "  Plane %d: crtc %d fb %d possible 0x%x\n", p.ID, p.Crtc, p.Fb, p.PossibleCrtcs)
		}
		for _, c := range card.Connectors {
			state := "disconnected"
			if c.Connected {
				state = "connected"
			}
			fmt.Fprintf(w, "  Connector %d: %s %s\n", c.ID, c.Type, state)
			for _, m := range c.Modes {
				fmt.Fprintf(w, "    %s\n", m)
			}
		}
	}
	return nil
}
