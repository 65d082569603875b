package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lunardb/lunar-db/internal/catalog"
	"github.com/lunardb/lunar-db/internal/config"
	"github.com/lunardb/lunar-db/internal/exec"
	"github.com/lunardb/lunar-db/internal/logger"
	"github.com/lunardb/lunar-db/internal/plan"
	"github.com/lunardb/lunar-db/internal/types"
)

const version = "0.1.0"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "lunardb",
		Short: "LunarDB query execution engine",
		Long:  "LunarDB runs relational query plans over in-memory tables with Parquet or JSON snapshots.",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(runCmd(), tablesCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the LunarDB version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("LunarDB %s\n", version)
		},
	}
}

func tablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables in the configured dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cat, log, err := openCatalog()
			if err != nil {
				return err
			}
			defer log.Sync()
			names := cat.ShowTables()
			if len(names) == 0 {
				fmt.Println("No tables")
				return nil
			}
			for _, name := range names {
				t, err := cat.GetTable(name)
				if err != nil {
					return err
				}
				fmt.Printf("%s (%d rows)\n", name, len(t.Rows))
			}
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the built-in demo queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cat, log, err := openCatalog()
			if err != nil {
				return err
			}
			defer log.Sync()

			if len(cat.ShowTables()) == 0 {
				log.Infow("empty dataset, seeding demo tables", "dir", cfg.Data.Dir)
				if err := seedDemo(cat); err != nil {
					return err
				}
			}

			ex := exec.New(cat,
				exec.WithLogger(log.Named("exec")),
				exec.WithMaxRecursion(cfg.Exec.MaxRecursion),
				exec.WithHashJoin(cfg.Exec.HashJoin),
			)
			ctx := context.Background()
			for _, demo := range demoQueries() {
				fmt.Printf("-- %s\n", demo.title)
				if err := runPlan(ctx, ex, demo.plan); err != nil {
					return fmt.Errorf("%s: %w", demo.title, err)
				}
				fmt.Println()
			}

			if save {
				if err := snapshot(cfg, cat); err != nil {
					return err
				}
				log.Infow("snapshot written", "dir", cfg.Data.Dir, "format", cfg.Data.Format)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "write the dataset snapshot back after running")
	return cmd
}

func openCatalog() (*config.Config, *catalog.Catalog, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := config.EnsureDataDir(cfg.Data.Dir); err != nil {
		return nil, nil, nil, err
	}
	cat := catalog.New(log.Named("catalog"))
	switch strings.ToLower(cfg.Data.Format) {
	case "json":
		path := filepath.Join(cfg.Data.Dir, "catalog.json")
		if _, statErr := os.Stat(path); statErr == nil {
			err = cat.LoadJSON(path)
		}
	default:
		err = cat.LoadParquet(cfg.Data.Dir)
	}
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, cat, log, nil
}

func snapshot(cfg *config.Config, cat *catalog.Catalog) error {
	if strings.ToLower(cfg.Data.Format) == "json" {
		return cat.SaveJSON(filepath.Join(cfg.Data.Dir, "catalog.json"))
	}
	return cat.SaveParquet(cfg.Data.Dir)
}

func seedDemo(cat *catalog.Catalog) error {
	if err := cat.CreateTable("customers", types.Schema{
		{Name: "CustomerID", Type: types.IntType},
		{Name: "Name", Type: types.StringType},
	}); err != nil {
		return err
	}
	if err := cat.CreateTable("orders", types.Schema{
		{Name: "OrderID", Type: types.IntType},
		{Name: "CustomerID", Type: types.IntType, Nullable: true},
		{Name: "Amount", Type: types.FloatType},
	}); err != nil {
		return err
	}
	if err := cat.CreateTable("employees", types.Schema{
		{Name: "EmployeeID", Type: types.IntType},
		{Name: "Name", Type: types.StringType},
		{Name: "ManagerID", Type: types.IntType, Nullable: true},
	}); err != nil {
		return err
	}

	customers := []types.Row{
		{types.NewInt(1), types.NewString("Ada")},
		{types.NewInt(2), types.NewString("Grace")},
		{types.NewInt(3), types.NewString("Edsger")},
	}
	orders := []types.Row{
		{types.NewInt(100), types.NewInt(1), types.NewFloat(120)},
		{types.NewInt(101), types.NewInt(2), types.NewFloat(250)},
		{types.NewInt(102), types.NewInt(2), types.NewFloat(200)},
		{types.NewInt(103), types.Null(), types.NewFloat(75)},
	}
	employees := []types.Row{
		{types.NewInt(1), types.NewString("Root"), types.Null()},
		{types.NewInt(2), types.NewString("Lead A"), types.NewInt(1)},
		{types.NewInt(3), types.NewString("Lead B"), types.NewInt(1)},
		{types.NewInt(4), types.NewString("Engineer"), types.NewInt(2)},
	}
	for _, row := range customers {
		if err := cat.Insert("customers", row); err != nil {
			return err
		}
	}
	for _, row := range orders {
		if err := cat.Insert("orders", row); err != nil {
			return err
		}
	}
	for _, row := range employees {
		if err := cat.Insert("employees", row); err != nil {
			return err
		}
	}
	return cat.CreateIndex("orders", []string{"CustomerID"})
}

type demoQuery struct {
	title string
	plan  plan.Node
}

func demoQueries() []demoQuery {
	return []demoQuery{
		{
			title: "customers with order totals over 400",
			plan: &plan.Aggregate{
				Input:   &plan.Scan{Table: "orders"},
				GroupBy: []plan.Field{{Expr: plan.Col("CustomerID"), Alias: "CustomerID"}},
				Aggs: []plan.AggCall{
					{Fn: plan.Sum, Arg: plan.Col("Amount"), Alias: "Total"},
					{Fn: plan.CountStar, Alias: "Orders"},
				},
				Having: &plan.Compare{Op: plan.Gt, Left: &plan.AggRef{Index: 0}, Right: plan.Lit(types.NewFloat(400))},
			},
		},
		{
			title: "customers and their orders (LEFT JOIN)",
			plan: &plan.Project{
				Input: &plan.Join{
					Kind:  plan.LeftJoin,
					Left:  &plan.Scan{Table: "customers", Alias: "c"},
					Right: &plan.Scan{Table: "orders", Alias: "o"},
					On: &plan.Compare{Op: plan.Eq,
						Left:  plan.QCol("c", "CustomerID"),
						Right: plan.QCol("o", "CustomerID")},
				},
				Fields: []plan.Field{
					{Expr: plan.QCol("c", "Name"), Alias: "Customer"},
					{Expr: plan.QCol("o", "OrderID"), Alias: "OrderID"},
					{Expr: plan.QCol("o", "Amount"), Alias: "Amount"},
				},
			},
		},
		{
			title: "orders ranked by amount",
			plan: &plan.Window{
				Input: &plan.Scan{Table: "orders"},
				Calls: []plan.WindowCall{{
					Fn:      plan.Rank,
					OrderBy: []plan.SortKey{{Expr: plan.Col("Amount"), Desc: true}},
					Alias:   "AmountRank",
				}},
			},
		},
		{
			title: "reporting chain from the root",
			plan: &plan.Recursive{
				Name: "chain",
				Anchor: &plan.Project{
					Input: &plan.Scan{Table: "employees",
						Predicate: &plan.IsNull{Input: plan.Col("ManagerID")}},
					Fields: []plan.Field{
						{Expr: plan.Col("EmployeeID"), Alias: "EmployeeID"},
						{Expr: plan.Col("Name"), Alias: "Name"},
						{Expr: plan.Lit(types.NewInt(0)), Alias: "Level"},
					},
				},
				Step: &plan.Project{
					Input: &plan.Join{
						Kind:  plan.InnerJoin,
						Left:  &plan.Scan{Table: "employees", Alias: "e"},
						Right: &plan.RecursiveRef{Name: "chain"},
						On: &plan.Compare{Op: plan.Eq,
							Left:  plan.QCol("e", "ManagerID"),
							Right: plan.QCol("chain", "EmployeeID")},
					},
					Fields: []plan.Field{
						{Expr: plan.QCol("e", "EmployeeID"), Alias: "EmployeeID"},
						{Expr: plan.QCol("e", "Name"), Alias: "Name"},
						{Expr: &plan.Arith{Op: plan.Add,
							Left:  plan.QCol("chain", "Level"),
							Right: plan.Lit(types.NewInt(1))}, Alias: "Level"},
					},
				},
			},
		},
	}
}

func runPlan(ctx context.Context, ex *exec.Executor, p plan.Node) error {
	result, err := ex.Execute(ctx, p)
	if err != nil {
		return err
	}
	defer result.Close()
	rows, err := result.Materialize()
	if err != nil {
		return err
	}
	printResults(result.Schema(), rows)
	return nil
}

// printResults renders rows as an aligned table with a header row and a
// separator line.
func printResults(schema types.Schema, rows []types.Row) {
	if len(rows) == 0 {
		fmt.Println("Empty result set")
		return
	}

	widths := make([]int, len(schema))
	for i, col := range schema {
		widths[i] = len(col.Name)
	}
	cells := make([][]string, len(rows))
	for ri, row := range rows {
		cells[ri] = make([]string, len(schema))
		for ci := range schema {
			s := row[ci].String()
			cells[ri][ci] = s
			if len(s) > widths[ci] {
				widths[ci] = len(s)
			}
		}
	}

	for i, col := range schema {
		if i > 0 {
			fmt.Print(" | ")
		}
		fmt.Printf("%-*s", widths[i], col.Name)
	}
	fmt.Println()

	for i := range schema {
		if i > 0 {
			fmt.Print("-+-")
		}
		fmt.Print(strings.Repeat("-", widths[i]))
	}
	fmt.Println()

	for _, row := range cells {
		for i, cell := range row {
			if i > 0 {
				fmt.Print(" | ")
			}
			fmt.Printf("%-*s", widths[i], cell)
		}
		fmt.Println()
	}
}
