package main

type Command struct {
	Version struct{} `cmd:"" help:"Print version information."`
	Run     struct {
		Config string `help:"config file path, settings can also come from DRB_* environment variables" short:"c" type:"path"`
		DryRun bool   `help:"don't write any files, just print the output"`
	} `cmd:"" help:"Back up every configured resource once and rotate the new backups."`
	Daemon struct {
		Config string `help:"config file path" short:"c" required:"" type:"existingfile"`
		DryRun bool   `help:"don't write any files, just print the output"`
	} `cmd:"" help:"Run backups on the configured schedule."`
	Archive struct {
		Config    string `help:"config file path" short:"c" type:"path"`
		Name      string `help:"logical name of the backup" short:"n" required:""`
		Extension string `help:"extension of the backup, without the leading dot" name:"ext" short:"e" required:""`
		Path      string `arg:"" help:"backup file made by an external tool" type:"existingfile"`
		DryRun    bool   `help:"don't write any files, just print the output"`
	} `cmd:"" help:"Stage and rotate a backup file made by another tool."`
	Prune struct {
		Config    string `help:"config file path" short:"c" type:"path"`
		Tier      string `help:"tier to prune" short:"t" required:"" enum:"hourly,daily,weekly,monthly"`
		Name      string `help:"logical name of the backups" short:"n" required:""`
		Extension string `help:"extension of the backups, without the leading dot" name:"ext" short:"e" required:""`
		DryRun    bool   `help:"don't delete any files, just print the output"`
	} `cmd:"" help:"Manually apply the retention of one tier."`
	Verify struct {
		Config string `help:"config file path" short:"c" type:"path"`
	} `cmd:"" help:"Check every copy recorded in the catalog against its content."`
}
