package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nivlheim/nivlheim/internal/config"
	"github.com/nivlheim/nivlheim/internal/db"
	"github.com/nivlheim/nivlheim/internal/db/repository"
)

var (
	configPath string
	cfg        *config.Config
	database   *db.DB
)

var rootCmd = &cobra.Command{
	Use:   "nivlheim-admin",
	Short: "Nivlheim server administration tool",
	Long:  "Administrative tool for managing enrollment approvals, auto-approved IP ranges and certificate revocation",
}

var waitingCmd = &cobra.Command{
	Use:   "waiting",
	Short: "Manage the enrollment waiting list",
}

var waitingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending enrollment requests",
	RunE:  listWaiting,
}

var waitingApproveCmd = &cobra.Command{
	Use:   "approve <ipaddr>",
	Short: "Approve the enrollment request from an IP address",
	Args:  cobra.ExactArgs(1),
	RunE:  approveWaiting,
}

var waitingDenyCmd = &cobra.Command{
	Use:   "deny <ipaddr>",
	Short: "Remove the enrollment request from an IP address",
	Args:  cobra.ExactArgs(1),
	RunE:  denyWaiting,
}

var ipRangeCmd = &cobra.Command{
	Use:   "iprange",
	Short: "Manage auto-approved IP ranges",
}

var ipRangeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List auto-approved CIDR ranges",
	RunE:  listIPRanges,
}

var ipRangeAddCmd = &cobra.Command{
	Use:   "add <cidr>",
	Short: "Add an auto-approved CIDR range",
	Args:  cobra.ExactArgs(1),
	RunE:  addIPRange,
}

var ipRangeRemoveCmd = &cobra.Command{
	Use:   "remove <cidr>",
	Short: "Remove an auto-approved CIDR range",
	Args:  cobra.ExactArgs(1),
	RunE:  removeIPRange,
}

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Manage issued certificates",
}

var certRevokeCmd = &cobra.Command{
	Use:   "revoke <fingerprint>",
	Short: "Revoke a certificate by its SHA-1 fingerprint",
	Args:  cobra.ExactArgs(1),
	RunE:  revokeCert,
}

func init() {
	// Root flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/nivlheim/config.yaml", "Config file path")

	// Add commands
	waitingCmd.AddCommand(waitingListCmd)
	waitingCmd.AddCommand(waitingApproveCmd)
	waitingCmd.AddCommand(waitingDenyCmd)
	rootCmd.AddCommand(waitingCmd)

	ipRangeCmd.AddCommand(ipRangeListCmd)
	ipRangeCmd.AddCommand(ipRangeAddCmd)
	ipRangeCmd.AddCommand(ipRangeRemoveCmd)
	rootCmd.AddCommand(ipRangeCmd)

	certCmd.AddCommand(certRevokeCmd)
	rootCmd.AddCommand(certCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initDB() error {
	// Load configuration
	var err error
	cfg, err = config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Connect to database
	database, err = db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	return nil
}

func listWaiting(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	entries, err := repository.NewWaitingRepository(database.DB).List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "IPADDR\tHOSTNAME\tRECEIVED\tAPPROVED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", e.IPAddr, e.Hostname, e.Received.Format("2006-01-02 15:04:05"), e.Approved)
	}
	return w.Flush()
}

func approveWaiting(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	if err := repository.NewWaitingRepository(database.DB).SetApproved(args[0], true); err != nil {
		return err
	}

	fmt.Printf("Approved enrollment from %s\n", args[0])
	return nil
}

func denyWaiting(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	if err := repository.NewWaitingRepository(database.DB).Delete(args[0]); err != nil {
		return err
	}

	fmt.Printf("Removed enrollment request from %s\n", args[0])
	return nil
}

func listIPRanges(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	ranges, err := repository.NewIPRangeRepository(database.DB).List()
	if err != nil {
		return err
	}

	for _, r := range ranges {
		fmt.Println(r)
	}
	return nil
}

func addIPRange(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	if err := repository.NewIPRangeRepository(database.DB).Add(args[0]); err != nil {
		return err
	}

	fmt.Printf("Added %s\n", args[0])
	return nil
}

func removeIPRange(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	if err := repository.NewIPRangeRepository(database.DB).Delete(args[0]); err != nil {
		return err
	}

	fmt.Printf("Removed %s\n", args[0])
	return nil
}

func revokeCert(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	if err := repository.NewCertRepository(database.DB).SetRevoked(args[0]); err != nil {
		return err
	}

	fmt.Printf("Revoked certificate %s\n", args[0])
	return nil
}
