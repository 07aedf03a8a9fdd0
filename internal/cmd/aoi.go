package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fmeflow/fmeflow-cli/internal/aoi"
	"github.com/fmeflow/fmeflow-cli/internal/api"
	"github.com/fmeflow/fmeflow-cli/internal/config"
	"github.com/fmeflow/fmeflow-cli/internal/validation"
)

// loadAOI reads and parses a GeoJSON or Esri JSON geometry file.
func loadAOI(path string) (aoi.Geometry, error) {
	data, err := readInput(path)
	if err != nil {
		return aoi.Geometry{}, fmt.Errorf("failed to read AOI: %w", err)
	}
	g, err := aoi.ParseGeometry(data)
	if err != nil {
		return aoi.Geometry{}, fmt.Errorf("invalid AOI %s: %w", path, err)
	}
	return g, nil
}

// localEngines builds geometry engines without needing a server connection.
// The geometry service comes from the flag, the environment or the saved
// profile, in that order.
func localEngines() (aoi.Engines, error) {
	serviceURL := strings.TrimSpace(flags.GeometryServiceURL)
	if serviceURL == "" {
		serviceURL = strings.TrimSpace(os.Getenv(config.EnvGeometryServiceURL))
	}
	if serviceURL == "" {
		if p, err := newClientFactory().profile(); err == nil {
			serviceURL = p.GeometryServiceURL
		}
	}
	if serviceURL != "" {
		if err := validation.ValidateServiceURL(serviceURL); err != nil {
			return aoi.Engines{}, fmt.Errorf("invalid geometry service URL: %w", err)
		}
	}
	return aoi.DefaultEngines(serviceURL, &http.Client{Timeout: flags.Timeout}), nil
}

// AOIReport describes an area of interest after reprojection and validation.
type AOIReport struct {
	Type             aoi.Kind             `json:"type"`
	InputSR          aoi.SpatialReference `json:"input_spatial_reference"`
	Rings            int                  `json:"rings"`
	Vertices         int                  `json:"vertices"`
	Valid            bool                 `json:"valid"`
	Simplified       bool                 `json:"simplified,omitempty"`
	Code             string               `json:"code,omitempty"`
	Error            string               `json:"error,omitempty"`
	AreaSquareMeters float64              `json:"area_m2"`
	Extent           [4]float64           `json:"extent"`
	GeoJSON          json.RawMessage      `json:"geojson,omitempty"`
	WKT              string               `json:"wkt"`
	Native           json.RawMessage      `json:"esri_json,omitempty"`
	SerializeError   string               `json:"serialize_error,omitempty"`
}

func newAOICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aoi",
		Short: "Inspect area-of-interest geometries",
		Long: `Parse, reproject and validate an area of interest locally, the same way
'jobs submit --aoi' and 'run --aoi' do before sending it to the server.

Input is GeoJSON (geometry, feature or feature collection; first polygon
used) or Esri JSON with a spatialReference.`,
	}
	cmd.AddCommand(newAOIInspectCmd())
	cmd.AddCommand(newAOIParamsCmd())
	return cmd
}

func newAOIInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "inspect <file>",
		Aliases: []string{"check", "i"},
		Short:   "Validate an AOI and show its area, extent and encodings",
		Example: `  fmeflow aoi inspect area.geojson
  cat area.json | fmeflow aoi inspect - --output json --query .area_m2`,
		Args: cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			g, err := loadAOI(args[0])
			if err != nil {
				return err
			}
			engines, err := localEngines()
			if err != nil {
				return err
			}

			report := inspectAOI(cmd, g, engines)
			if isJSON(cmd) {
				if err := printJSON(cmd, report); err != nil {
					return err
				}
			} else if err := writeAOIReport(cmd, report); err != nil {
				return err
			}
			if !report.Valid {
				return fmt.Errorf("geometry is not valid: %s", report.Code)
			}
			return nil
		}),
	}
}

func newAOIParamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "params <file>",
		Short: "Show the job parameters an AOI produces",
		Args:  cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			g, err := loadAOI(args[0])
			if err != nil {
				return err
			}
			engines, err := localEngines()
			if err != nil {
				return err
			}
			params, err := api.AOIParams(cmd.Context(), g, engines)
			if err != nil {
				return err
			}
			if isJSON(cmd) {
				return printJSON(cmd, params)
			}
			keys := make([]string, 0, len(params))
			for k := range params {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			pairs := make([]string, 0, 2*len(keys))
			for _, k := range keys {
				pairs = append(pairs, k, fmt.Sprint(params[k]))
			}
			return newFormatter(cmd).KeyValues(pairs...)
		}),
	}
}

func inspectAOI(cmd *cobra.Command, g aoi.Geometry, engines aoi.Engines) AOIReport {
	ctx := cmd.Context()
	report := AOIReport{Type: g.Type, InputSR: g.SpatialReference, Rings: len(g.Rings)}
	for _, ring := range g.Rings {
		report.Vertices += len(ring)
	}

	wgs := aoi.ReprojectToWGS84(ctx, g, engines)
	res := aoi.ValidatePolygon(ctx, wgs, engines)
	report.Valid = res.Valid
	report.Code = res.Code
	if res.Err != nil {
		report.Error = res.Err.Error()
	}
	if res.Simplified != nil {
		wgs = *res.Simplified
		report.Simplified = true
	}

	report.AreaSquareMeters = res.Area
	if report.AreaSquareMeters <= 0 {
		report.AreaSquareMeters = aoi.ComputeArea(ctx, wgs, engines)
	}
	b := aoi.Extent(wgs)
	report.Extent = [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}

	out := aoi.Serialize(wgs)
	if out.GeoJSON != nil {
		if data, err := json.Marshal(out.GeoJSON); err == nil {
			report.GeoJSON = data
		}
	}
	report.WKT = out.WKT
	report.Native = out.Native
	if out.Err != nil {
		report.SerializeError = out.Err.Error()
	}
	return report
}

func writeAOIReport(cmd *cobra.Command, r AOIReport) error {
	valid := green("yes")
	if !r.Valid {
		valid = red("no (" + r.Code + ")")
	}
	pairs := []string{
		"Type", string(r.Type),
		"Input WKID", fmt.Sprint(r.InputSR.WKID),
		"Rings", fmt.Sprint(r.Rings),
		"Vertices", fmt.Sprint(r.Vertices),
		"Valid", valid,
	}
	if r.Error != "" {
		pairs = append(pairs, "Reason", r.Error)
	}
	if r.Simplified {
		pairs = append(pairs, "Simplified", "yes")
	}
	pairs = append(pairs,
		"Area", formatArea(r.AreaSquareMeters),
		"Extent", fmt.Sprintf("%.6f, %.6f, %.6f, %.6f", r.Extent[0], r.Extent[1], r.Extent[2], r.Extent[3]),
		"WKT", truncate(r.WKT, 80),
	)
	return newFormatter(cmd).KeyValues(pairs...)
}

func formatArea(m2 float64) string {
	switch {
	case m2 <= 0:
		return "unknown"
	case m2 >= 1e6:
		return fmt.Sprintf("%.3f km²", m2/1e6)
	default:
		return fmt.Sprintf("%.1f m²", m2)
	}
}
