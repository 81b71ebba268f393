package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sokofone/ms-go-airtime/config"
)

var rootCmd = &cobra.Command{
	Use:   "airtime",
	Short: "Airtime top-up gateway",
	Long:  "A mobile airtime top-up gateway bridging M-Pesa STK push collections to dealer-direct and aggregator airtime dispatch.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func configureLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	return nil
}
