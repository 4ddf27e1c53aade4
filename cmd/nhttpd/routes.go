package main

import (
	"fmt"

	"github.com/muir/nhttp/nvelope"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type routeInfo struct {
	Path       string   `yaml:"path"`
	Parameters []string `yaml:"parameters,omitempty"`
	Statuses   []int    `yaml:"statuses,omitempty"`
}

func newRoutesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List the endpoints and their parameters as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, _, err := loadConfig(viper.New(), path)
			if err != nil {
				return err
			}
			s, err := newServer(cfg, "unused", nvelope.NoLogger(), prometheus.NewRegistry())
			if err != nil {
				return err
			}
			routes, err := s.routes()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(routes); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func (s *server) routes() ([]routeInfo, error) {
	var out []routeInfo
	for _, r := range s.endpoints.Endpoints() {
		e, ok := r.Endpoint()
		if !ok {
			return nil, fmt.Errorf("%s was not started", r.Path())
		}
		sig := e.Signature()
		info := routeInfo{
			Path:     r.Path(),
			Statuses: sig.Returns.Statuses(),
		}
		for _, p := range sig.PathParams {
			info.Parameters = append(info.Parameters, "path "+p.Key())
		}
		for _, p := range sig.QueryParams {
			info.Parameters = append(info.Parameters, "query "+p.Key())
		}
		for _, p := range sig.HeaderParams {
			info.Parameters = append(info.Parameters, string(p.Source)+" "+p.Key())
		}
		if name := sig.BodyName(); name != "" {
			info.Parameters = append(info.Parameters, "body "+name)
		}
		for _, d := range sig.Dependencies {
			info.Parameters = append(info.Parameters, "dependency "+d.Name)
		}
		for _, p := range sig.Plugins {
			info.Parameters = append(info.Parameters, "plugin "+p.Name)
		}
		out = append(out, info)
	}
	return out, nil
}
