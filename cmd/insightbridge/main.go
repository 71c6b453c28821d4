package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dropDatabas3/insightbridge/internal/app"
	"github.com/dropDatabas3/insightbridge/internal/config"
	"github.com/dropDatabas3/insightbridge/internal/observability/logger"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string

	root := &cobra.Command{
		Use:           "insightbridge",
		Short:         "Servicio de verificación: claves, tokens, nonces y cadena de auditoría",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv("INSIGHTBRIDGE_CONFIG"), "Ruta al config.yaml (env INSIGHTBRIDGE_CONFIG)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "insightbridge"})
		return cfg, nil
	}

	// build arma el container completo (con restore incluido)
	build := func(ctx context.Context) (*app.Container, error) {
		cfg, err := load()
		if err != nil {
			return nil, err
		}
		return app.New(ctx, cfg)
	}

	printJSON := func(v any) {
		b, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(string(b))
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Arranca el servicio y hace snapshot al recibir SIGINT/SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := build(ctx)
			if err != nil {
				return err
			}
			defer c.Close()
			defer logger.Sync()

			log := logger.Named("main")
			log.Info("insightbridge arriba",
				zap.String("env", c.Cfg.App.Env),
				zap.String("nonce_backend", c.Cfg.Nonce.Kind),
				zap.String("snapshot", c.Cfg.Persistence.Path))

			if err := c.Run(ctx); err != nil {
				return err
			}
			c.LogMetrics()
			log.Info("apagado limpio", zap.Int("chain_length", c.Chain.Len()))
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Imprime el estado agregado (cadena, buffer, claves)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			printJSON(c.Status())
			return nil
		},
	}

	keysCmd := &cobra.Command{Use: "keys", Short: "Operaciones sobre el almacén de claves"}

	keysGenCmd := &cobra.Command{
		Use:   "gen <kid>",
		Short: "Genera (o reemplaza) un par de claves y persiste el snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := build(ctx)
			if err != nil {
				return err
			}
			defer c.Close()
			kp, err := c.Keys.Generate(args[0])
			if err != nil {
				return err
			}
			if err := c.Persist.Snapshot(ctx); err != nil {
				return err
			}
			fmt.Printf("kid=%s alg=%s created_at=%s\n", kp.KID, kp.Alg, kp.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
			return nil
		},
	}

	keysListCmd := &cobra.Command{
		Use:   "list",
		Short: "Lista los ids de claves conocidos",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			for _, id := range c.Keys.IDs() {
				fmt.Println(id)
			}
			return nil
		},
	}

	keysRotateCmd := &cobra.Command{
		Use:   "rotate <kid>",
		Short: "Rota un par de claves (las firmas viejas siguen verificando)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := build(ctx)
			if err != nil {
				return err
			}
			defer c.Close()
			if _, err := c.Keys.Rotate(args[0]); err != nil {
				return err
			}
			if err := c.Persist.Snapshot(ctx); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
	keysCmd.AddCommand(keysGenCmd, keysListCmd, keysRotateCmd)

	auditCmd := &cobra.Command{Use: "audit", Short: "Operaciones sobre la cadena de auditoría"}

	auditVerifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verifica la integridad de la cadena restaurada",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			if !c.Chain.VerifyIntegrity() {
				return fmt.Errorf("cadena inválida (len=%d)", c.Chain.Len())
			}
			fmt.Printf("ok len=%d last=%s\n", c.Chain.Len(), c.Chain.LastHash())
			return nil
		},
	}
	auditCmd.AddCommand(auditVerifyCmd)

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Fuerza un snapshot del estado actual",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := build(ctx)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Persist.Snapshot(ctx); err != nil {
				return err
			}
			fmt.Println(c.Cfg.Persistence.Path)
			return nil
		},
	}

	root.AddCommand(runCmd, statusCmd, keysCmd, auditCmd, snapshotCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
