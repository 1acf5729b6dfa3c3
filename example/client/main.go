package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tokmz/ircium"
	"github.com/tokmz/ircium/pkg/config"
	"github.com/tokmz/ircium/pkg/irc"
)

func main() {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "ircium-client",
		Short:         "多服务器 IRC 客户端示例",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "ircium.yaml", "配置文件路径")

	rootCmd.AddCommand(
		runCmd(&configFile),
		genconfCmd(&configFile),
		checkconfCmd(&configFile),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

func runCmd(configFile *string) *cobra.Command {
	var channels []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "连接配置中的全部服务器并运行",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ircium.FromFile(*configFile)
			if err != nil {
				return fmt.Errorf("加载配置失败: %w", err)
			}

			client := engine.Client()
			log := engine.Logger()

			// 注册完成后加入频道
			err = engine.Hooks().Register("001", func(s *irc.Server, m *irc.Message) error {
				log.Info("注册完成", zap.String("server", s.String()), zap.Strings("params", m.Params))
				for _, ch := range channels {
					if ch = strings.TrimSpace(ch); ch != "" {
						if err := client.EnqueueMessage(s, irc.NewMessage("JOIN", ch)); err != nil {
							return err
						}
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			err = engine.Hooks().Register("PRIVMSG", func(s *irc.Server, m *irc.Message) error {
				if len(m.Params) < 2 {
					return nil
				}
				log.Info("收到消息",
					zap.String("server", s.String()),
					zap.String("from", m.Nick()),
					zap.String("target", m.Params[0]),
					zap.String("text", m.Params[1]),
				)
				return nil
			})
			if err != nil {
				return err
			}

			return engine.Run(cmd.Context())
		},
	}

	cmd.Flags().StringSliceVarP(&channels, "join", "j", nil, "连接后加入的频道，逗号分隔")
	return cmd
}

func genconfCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "genconf",
		Short: "生成默认配置文件",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(*configFile); err != nil {
				return fmt.Errorf("写入默认配置 %q 失败: %w", *configFile, err)
			}
			fmt.Printf("\033[32m✓\033[0m 默认配置已写入 %s\n", *configFile)
			return nil
		},
	}
}

func checkconfCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "checkconf",
		Short: "检查配置文件",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, c, err := config.LoadFile(*configFile)
			if err != nil {
				return fmt.Errorf("配置无效: %w", err)
			}
			c.Close()
			fmt.Printf("\033[32m✓\033[0m 配置检查通过，共 %d 个服务器\n", len(f.Servers))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "打印版本信息",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ircium %s (%s %s/%s)\n", ircium.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
