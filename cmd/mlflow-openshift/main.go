package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/davidmdm/x/xcontext"

	"github.com/davidmdm/mlflow-openshift/internal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		if internal.IsWarning(err) {
			return
		}
		os.Exit(1)
	}
}

//go:embed cmd_help.txt
var rootHelp string

func init() {
	rootHelp = strings.TrimSpace(internal.Colorize(rootHelp))
}

func run() error {
	ctx, done := xcontext.WithSignalCancelation(context.Background(), syscall.SIGINT)
	defer done()

	klog.InitFlags(flag.CommandLine)

	var settings GlobalSettings
	RegisterGlobalFlags(flag.CommandLine, &settings)

	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), rootHelp)
		flag.PrintDefaults()
		fmt.Fprintln(os.Stderr)
	}

	flag.Parse()

	ctx = klog.NewContext(ctx, klog.Background())

	if len(flag.Args()) == 0 {
		flag.Usage()
		return fmt.Errorf("no command provided")
	}

	subcmdArgs := flag.Args()[1:]

	switch cmd := flag.Arg(0); cmd {
	case "create":
		{
			params, err := GetCreateParams(settings, subcmdArgs)
			if err != nil {
				return err
			}
			return Create(ctx, *params)
		}
	case "update":
		{
			params, err := GetUpdateParams(settings, subcmdArgs)
			if err != nil {
				return err
			}
			return Update(ctx, *params)
		}
	case "delete":
		{
			params, err := GetDeleteParams(settings, subcmdArgs)
			if err != nil {
				return err
			}
			return Delete(ctx, *params)
		}
	case "list":
		{
			params, err := GetListParams(settings, subcmdArgs)
			if err != nil {
				return err
			}
			return List(ctx, *params)
		}
	case "get":
		{
			params, err := GetGetParams(settings, subcmdArgs)
			if err != nil {
				return err
			}
			return Get(ctx, *params)
		}
	case "predict":
		{
			params, err := GetPredictParams(settings, os.Stdin, subcmdArgs)
			if err != nil {
				return err
			}
			return Predict(ctx, *params)
		}
	case "run-local":
		{
			return RunLocal()
		}
	case "help":
		{
			return Help(ctx)
		}
	case "version":
		{
			return Version(ctx)
		}
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}
