// Command smb1d is a thin binary wiring the server engine to a real
// listener: an in-memory demo share, NTLM-or-guest authentication, and
// config loaded from flags/file/environment. Grounded on the teacher's
// examples/smb-server/main.go (flag surface, share/server wiring order,
// graceful-shutdown-on-signal shape), adapted from flag-package parsing to
// cobra+viper per SPEC_FULL.md's DOMAIN STACK wiring.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fileshare/smb1d"
	"github.com/fileshare/smb1d/internal/memdrv"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "smb1d",
		Short: "Serve an in-memory share over SMB1/CIFS",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}

	flags := cmd.Flags()
	flags.String("share", "demo", "share name to export")
	flags.Bool("readonly", false, "export the share read-only")
	flags.String("server-name", "SMB1D", "NetBIOS server name advertised at negotiate")
	flags.Int("netbios-port", 139, "NetBIOS session-service port (0 disables)")
	flags.Int("smb-port", 445, "direct-TCP SMB port (0 disables)")
	flags.Int("workers", 32, "worker pool goroutine count")
	flags.Bool("allow-guest", true, "allow guest (unauthenticated) access")
	flags.StringToString("users", nil, "username=password pairs for NTLM auth")
	flags.String("config", "", "path to a config file (yaml/json/toml); overrides flag defaults")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("SMB1D")
	v.AutomaticEnv()

	cobra.OnInitialize(func() {
		if cfg, _ := flags.GetString("config"); cfg != "" {
			v.SetConfigFile(cfg)
			if err := v.ReadInConfig(); err != nil {
				fmt.Fprintf(os.Stderr, "smb1d: reading config %s: %v\n", cfg, err)
			}
		}
	})

	return cmd
}

func run(v *viper.Viper) error {
	log := logrus.NewEntry(logrus.StandardLogger())

	opts := smb1d.DefaultServerOptions()
	opts.ServerName = v.GetString("server-name")
	opts.NetBIOSPort = v.GetInt("netbios-port")
	opts.SMBPort = v.GetInt("smb-port")
	opts.EnableNetBIOS = opts.NetBIOSPort > 0
	opts.EnableTCPSMB = opts.SMBPort > 0
	if w := v.GetInt("workers"); w > 0 {
		opts.Workers = w
	}

	users := v.GetStringMapString("users")
	allowGuest := v.GetBool("allow-guest")

	var auth smb1d.Authenticator
	if len(users) > 0 {
		auth = smb1d.NewNTLMAuthenticator(opts.Domain, users, allowGuest, opts.ExtendedSecurity)
	} else {
		auth = smb1d.NewGuestAuthenticator(opts.ExtendedSecurity)
	}

	shareOpts := smb1d.DefaultShareOptions(v.GetString("share"))
	shareOpts.ReadOnly = v.GetBool("readonly")

	share := &smb1d.Share{
		Name:     shareOpts.ShareName,
		Type:     shareOpts.ShareType,
		Comment:  "in-memory demo share",
		Driver:   memdrv.NewPopulated(),
		ReadOnly: shareOpts.ReadOnly,
	}
	shares := smb1d.NewShareRegistry([]*smb1d.Share{share}, nil)

	poolCfg := smb1d.DefaultPacketPoolConfig()
	poolCfg.OverSizeCeiling = opts.OverSizeCeiling
	poolCfg.LeaseDuration = opts.LeaseDuration
	poolCfg.AllocateWait = opts.AllocateWait
	pool := smb1d.NewPacketPool(poolCfg, log.WithField("component", "packetpool"))

	notify := smb1d.NewChangeNotifyFanout(pool, log.WithField("component", "notify"))

	dispatcher := smb1d.NewDispatcher(opts, shares, auth, notify, pool, nil, log.WithField("component", "dispatcher"))
	server := smb1d.NewServer(opts, shares, auth, notify, dispatcher, log.WithField("component", "server"))

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	log.WithFields(logrus.Fields{
		"share":        share.Name,
		"netbios_port": opts.NetBIOSPort,
		"smb_port":     opts.SMBPort,
	}).Info("smb1d listening")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	log.Info("shutting down")
	server.Stop()
	return nil
}
