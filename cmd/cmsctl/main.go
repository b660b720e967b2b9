package main

// cmsctl 为站点运维命令行：创建后台账号、分配角色、写入示例内容、清理访问记录与加密历史 MFA 秘钥。
// 用法：go run ./cmd/cmsctl --config config.yaml <command>

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"madajagad/internal/config"
	"madajagad/internal/services"
	"madajagad/internal/storage"
)

// runtime 保存各子命令共享的配置与服务。
type runtime struct {
	cfg      config.Config
	db       *gorm.DB
	users    *services.UserService
	roles    *services.RoleService
	catalog  *services.Catalog
	about    *services.AboutService
	settings *services.SettingService
	visits   *services.VisitService
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		rt         = &runtime{}
	)
	root := &cobra.Command{
		Use:           "cmsctl",
		Short:         "Maintenance commands for the company site",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.open(configPath)
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			storage.Close(rt.db)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (defaults to config.yaml or config.json in the working directory)")
	root.AddCommand(
		newUserCommand(rt),
		newRoleCommand(rt),
		newSeedCommand(rt),
		newVisitsCommand(rt),
		newMFACommand(rt),
	)
	return root
}

// open 加载配置并连接数据库；子命令不依赖 Redis，事件总线为空时写入不广播。
func (rt *runtime) open(configPath string) error {
	cfg := config.Load()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadFile(configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	db, err := storage.Open(cfg)
	if err != nil {
		return err
	}
	rt.cfg = cfg
	rt.db = db
	rt.users = services.NewUserService(db, cfg)
	rt.roles = services.NewRoleService(db)
	rt.catalog = services.NewCatalog(db, nil)
	rt.about = services.NewAboutService(db, nil)
	rt.settings = services.NewSettingService(db, nil)
	rt.visits = services.NewVisitService(db, cfg.Analytics)
	return nil
}
