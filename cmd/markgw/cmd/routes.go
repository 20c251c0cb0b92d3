package cmd

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/markplatform/gateway/cmd/markgw/cmd/cmdutil"
	"github.com/markplatform/gateway/cmd/markgw/internal/routing"
)

var (
	routesPath   string
	routesMethod string
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Show the route table and where a path would be forwarded",
	Long: `Prints the configured route groups in match order. With --path, shows the
group that would handle the request and the downstream URL it resolves to.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gw, err := cmdutil.NewGateway(cfg, cmdutil.GatewayOptions{})
		if err != nil {
			return err
		}

		pterm.DefaultSection.Println("Route Groups")
		table := pterm.TableData{{"NAME", "PATTERNS", "TARGET", "AUTH", "FILTER"}}
		for _, group := range gw.Table.Groups() {
			filter := group.Filter
			if filter == "" {
				filter = "-"
			}
			table = append(table, []string{
				group.Name,
				strings.Join(group.Patterns, ", "),
				string(group.Target),
				string(group.Auth),
				filter,
			})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(table).Render(); err != nil {
			return err
		}
		pterm.Info.Printf("Identity strategy: %s\n", gw.Dispatcher.Strategy())

		if routesPath == "" {
			return nil
		}

		u, err := url.Parse(routesPath)
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
		method := strings.ToUpper(routesMethod)

		path := u.EscapedPath()

		pterm.DefaultSection.Println("Resolution")
		if err := routing.CheckPath(path); err != nil {
			pterm.Warning.Printf("%s %s is rejected with 400: %v\n", method, path, err)
			return nil
		}
		group, err := gw.Table.Match(method, path)
		if err != nil {
			pterm.Warning.Printf("%s %s matches no route group; the gateway answers 400\n", method, path)
			return nil
		}
		target, err := gw.Resolver.Resolve(group, path, u.RawQuery)
		if err != nil {
			return err
		}
		pterm.Printf("Group:  %s\n", group.Name)
		pterm.Printf("Auth:   %s\n", group.Auth)
		pterm.Printf("Target: %s\n", target)
		return nil
	},
}

func init() {
	routesCmd.Flags().StringVar(&routesPath, "path", "", "Request path (and optional query) to resolve")
	routesCmd.Flags().StringVar(&routesMethod, "method", http.MethodGet, "Request method used for matching")
	rootCmd.AddCommand(routesCmd)
}
