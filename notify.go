package main

type Notifier interface {
	NotifySyncResults(SyncConfig, *ResultMap) error
	NotifyBackupResults(backupConfig BackupConfig, key string, size int64, backupErr error) error
}
