// Package main 权限管理命令行工具
//
// 用法:
//
//	accessctl seed-defaults
//	accessctl create-role <key> <display> <folder>
//	accessctl grant <role> <module> <caps>   caps 为 a/m/d 的组合，如 am
//	accessctl dump-matrix [--role <key>]
//
// 退出码: 0 成功，1 用法错误，2 冲突，3 存储错误
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/clinichub/access-backend/internal/config"
	"github.com/clinichub/access-backend/internal/database"
	"github.com/clinichub/access-backend/internal/model"
	"github.com/clinichub/access-backend/internal/repository"
	"github.com/clinichub/access-backend/internal/service"
)

const (
	exitOK       = 0
	exitUsage    = 1
	exitConflict = 2
	exitStorage  = 3
)

func usage() {
	fmt.Fprintln(os.Stderr, "用法:")
	fmt.Fprintln(os.Stderr, "  accessctl seed-defaults")
	fmt.Fprintln(os.Stderr, "  accessctl create-role <key> <display> <folder>")
	fmt.Fprintln(os.Stderr, "  accessctl grant <role> <module> <caps>")
	fmt.Fprintln(os.Stderr, "  accessctl dump-matrix [--role <key>]")
}

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		usage()
		return exitUsage
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Printf("加载配置失败: %v", err)
		return exitStorage
	}

	// 初始化数据库
	if err := database.Init(&cfg.Database); err != nil {
		log.Printf("初始化数据库失败: %v", err)
		return exitStorage
	}
	defer database.Close()

	ctx := context.Background()

	// 初始化 Repository 和 Service
	moduleRepo := repository.NewModuleRepository(database.GetDB())
	roleRepo := repository.NewRoleRepository(database.GetDB())
	permRepo := repository.NewPermissionRepository(database.GetDB())
	auditRepo := repository.NewAuditRepository(database.GetDB())

	auditService := service.NewAuditService(auditRepo, nil, 1000)
	defer auditService.Close(5 * time.Second)

	registry := service.NewRegistry(moduleRepo, roleRepo)
	if err := registry.Reload(ctx); err != nil {
		log.Printf("加载模块角色目录失败: %v", err)
		return exitStorage
	}

	adminService := service.NewAccessAdminService(moduleRepo, roleRepo, permRepo, registry, nil, auditService, nil)

	switch os.Args[1] {
	case "seed-defaults":
		return seedDefaults(ctx, adminService)
	case "create-role":
		return createRole(ctx, adminService, os.Args[2:])
	case "grant":
		return grant(ctx, adminService, os.Args[2:])
	case "dump-matrix":
		return dumpMatrix(ctx, adminService, registry, os.Args[2:])
	default:
		usage()
		return exitUsage
	}
}

func seedDefaults(ctx context.Context, adminService service.AccessAdminService) int {
	if err := adminService.SeedDefaults(ctx, ""); err != nil {
		log.Printf("初始化默认目录失败: %v", err)
		return exitStorage
	}
	fmt.Println("默认模块与角色目录已初始化")
	return exitOK
}

func createRole(ctx context.Context, adminService service.AccessAdminService, args []string) int {
	if len(args) != 3 {
		usage()
		return exitUsage
	}

	role := &model.Role{
		Key:            args[0],
		DisplayName:    args[1],
		TemplateFolder: args[2],
	}

	if err := adminService.CreateRole(ctx, "", role); err != nil {
		return reportError("创建角色失败", err)
	}
	fmt.Printf("角色 %s 已创建\n", role.Key)
	return exitOK
}

func grant(ctx context.Context, adminService service.AccessAdminService, args []string) int {
	if len(args) != 3 {
		usage()
		return exitUsage
	}

	caps, err := parseCaps(args[2])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}

	if err := adminService.Grant(ctx, "", args[0], args[1], caps); err != nil {
		return reportError("授权失败", err)
	}
	fmt.Printf("已授权 %s -> %s (%s)\n", args[0], args[1], args[2])
	return exitOK
}

func dumpMatrix(ctx context.Context, adminService service.AccessAdminService, registry service.Registry, args []string) int {
	var roleKey string
	for i := 0; i < len(args); i++ {
		if args[i] == "--role" && i+1 < len(args) {
			roleKey = args[i+1]
			i++
			continue
		}
		usage()
		return exitUsage
	}

	roles := registry.ListRoles()
	if roleKey != "" {
		role, err := registry.GetRole(roleKey)
		if err != nil {
			log.Printf("角色不存在: %s", roleKey)
			return exitStorage
		}
		roles = []*model.Role{role}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROLE\tMODULE\tACCESS\tMODIFY\tDELETE")
	for _, role := range roles {
		rows, err := adminService.GetMatrix(ctx, role.Key)
		if err != nil {
			log.Printf("读取权限矩阵失败: %v", err)
			return exitStorage
		}
		for _, row := range rows {
			fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%t\n",
				role.Key, row.ModuleKey, row.Caps.Access, row.Caps.Modify, row.Caps.Delete)
		}
	}
	w.Flush()
	return exitOK
}

// parseCaps 解析能力位字母组合，a=访问 m=修改 d=删除
func parseCaps(s string) (model.Caps, error) {
	var caps model.Caps
	for _, r := range strings.ToLower(s) {
		switch r {
		case 'a':
			caps.Access = true
		case 'm':
			caps.Modify = true
		case 'd':
			caps.Delete = true
		default:
			return model.Caps{}, fmt.Errorf("无法识别的能力位: %c (只支持 a/m/d)", r)
		}
	}
	return caps, nil
}

func reportError(prefix string, err error) int {
	log.Printf("%s: %v", prefix, err)
	switch {
	case errors.Is(err, service.ErrRoleKeyExists),
		errors.Is(err, service.ErrModuleKeyExists),
		errors.Is(err, service.ErrSystemRole),
		errors.Is(err, service.ErrModuleInUse):
		return exitConflict
	case errors.Is(err, service.ErrInvalidRoleKey),
		errors.Is(err, service.ErrInvalidModuleKey):
		return exitUsage
	default:
		return exitStorage
	}
}
