// SPDX-License-Identifier: Apache-2.0
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"vecsplit/internal/config"
	"vecsplit/internal/lsp"
)

const lsName = "vecsplit" // Name identifier for the language server

var (
	version = "0.1.0"
	handler protocol.Handler
)

func main() {
	var verbosity int
	var configPath string

	cmd := &cobra.Command{
		Use:           lsName + "-lsp",
		Short:         "Language server for the vecsplit textual IR, over stdio",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(verbosity, configPath)
		},
	}
	cmd.Flags().IntVarP(&verbosity, "verbose", "v", 1, "log verbosity")
	cmd.Flags().StringVarP(&configPath, "config", "c", config.FileName, "configuration used until the client reports a workspace root")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(verbosity int, configPath string) error {
	commonlog.Configure(verbosity, nil)
	log := commonlog.GetLogger("vecsplit.lsp.main")

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Errorf("%s", err)
		return err
	}

	vecsplitHandler := lsp.NewVecsplitHandler(cfg)

	handler = protocol.Handler{
		Initialize:                     vecsplitHandler.Initialize,
		Initialized:                    vecsplitHandler.Initialized,
		Shutdown:                       vecsplitHandler.Shutdown,
		SetTrace:                       vecsplitHandler.SetTrace,
		TextDocumentDidOpen:            vecsplitHandler.TextDocumentDidOpen,
		TextDocumentDidClose:           vecsplitHandler.TextDocumentDidClose,
		TextDocumentDidChange:          vecsplitHandler.TextDocumentDidChange,
		TextDocumentHover:              vecsplitHandler.TextDocumentHover,
		TextDocumentSemanticTokensFull: vecsplitHandler.TextDocumentSemanticTokensFull,
	}

	// debug enables glsp's own protocol logging
	s := server.NewServer(&handler, lsName, verbosity > 2)

	log.Infof("starting %s language server %s", lsName, version)

	if err := s.RunStdio(); err != nil {
		log.Errorf("language server stopped: %s", err)
		return err
	}
	return nil
}
