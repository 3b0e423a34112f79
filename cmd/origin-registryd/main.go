package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"xdao.co/origin/registry/backends"
	"xdao.co/origin/registry/grpcreg"

	_ "xdao.co/origin/registry/localfs"
	_ "xdao.co/origin/registry/memory"
	_ "xdao.co/origin/registry/sqlite"
)

type optionFlags []string

func (o *optionFlags) String() string     { return fmt.Sprint(*o) }
func (o *optionFlags) Set(v string) error { *o = append(*o, v); return nil }

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("origin-registryd", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "registry backend name")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	verbose := fs.Bool("v", false, "development logging")
	var opts optionFlags
	fs.Var(&opts, "opt", "backend option key=value (repeatable)")

	_ = fs.Parse(args)
	if *listBackends {
		for _, b := range backends.List(backends.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(os.Stdout, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(os.Stdout, "%s\t%s\n", b.Name, b.Description)
			for _, o := range b.Options {
				_, _ = fmt.Fprintf(os.Stdout, "\t-opt %s=...\t%s\n", o.Key, o.Help)
			}
		}
		return 0
	}

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	parsed, err := backends.ParseOptions(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	reg, closeFn, err := backends.Open(*backend, backends.UsageDaemon, parsed)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer closeFn()

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		logger.Error("listen", zap.Error(err))
		return 1
	}
	defer lis.Close()

	s := grpc.NewServer(grpc.UnaryInterceptor(grpcreg.LoggingInterceptor(logger)))
	grpcreg.RegisterRegistryServer(s, &grpcreg.Server{Registry: reg})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	logger.Info("origin-registryd listening", zap.String("addr", lis.Addr().String()), zap.String("backend", *backend))
	if err := s.Serve(lis); err != nil {
		logger.Error("serve", zap.Error(err))
		return 1
	}
	return 0
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
