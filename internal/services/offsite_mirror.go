package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/driftpanel/backend/internal/config"
	"github.com/driftpanel/backend/internal/daemon"
	"github.com/driftpanel/backend/internal/database"
	"github.com/driftpanel/backend/internal/models"
)

// OffsiteMirrorService copies completed backups to a schedule's FTP
// destination so a node loss does not take the backups with it
type OffsiteMirrorService struct {
	cfg      *config.Config
	stopChan chan struct{}
}

// NewOffsiteMirrorService creates a new offsite mirror service
func NewOffsiteMirrorService(cfg *config.Config) *OffsiteMirrorService {
	return &OffsiteMirrorService{
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
}

// Start starts the mirror loop
func (s *OffsiteMirrorService) Start() {
	log.Printf("OffsiteMirrorService started, checking every %s", s.cfg.MirrorInterval)

	ticker := time.NewTicker(s.cfg.MirrorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			log.Println("OffsiteMirrorService stopped")
			return
		case <-ticker.C:
			s.mirrorPending()
		}
	}
}

// Stop stops the mirror loop
func (s *OffsiteMirrorService) Stop() {
	close(s.stopChan)
}

// mirrorPending finds completed backups on FTP-enabled schedules that have
// not been mirrored yet and uploads them
func (s *OffsiteMirrorService) mirrorPending() {
	var schedules []models.BackupSchedule
	if err := database.DB.Preload("Server").Preload("Server.Node").
		Where("is_enabled = ? AND ftp_enabled = ?", true, true).Find(&schedules).Error; err != nil {
		log.Printf("OffsiteMirror: Failed to load schedules: %v", err)
		return
	}

	for i := range schedules {
		schedule := schedules[i]
		if schedule.Server == nil || schedule.Server.Node == nil {
			continue
		}
		s.mirrorServer(&schedule)
	}
}

// mirrorServer mirrors all unmirrored successful backups of one server
func (s *OffsiteMirrorService) mirrorServer(schedule *models.BackupSchedule) {
	server := schedule.Server
	api := daemon.NewClient(server.Node.BaseURL(), server.Node.Token).Server(server.UUID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	snapshot, err := api.ListBackups(ctx, 1)
	if err != nil {
		log.Printf("OffsiteMirror: Failed to list backups for %s: %v", server.UUID, err)
		return
	}

	for _, rec := range snapshot.Items {
		if !rec.IsSuccessful {
			continue
		}

		var count int64
		database.DB.Model(&models.BackupMirror{}).
			Where("backup_uuid = ? AND status = ?", rec.UUID, "success").Count(&count)
		if count > 0 {
			continue
		}

		mirror := models.BackupMirror{
			ServerUUID: server.UUID,
			BackupUUID: rec.UUID,
			MirroredAt: time.Now(),
		}

		bytes, dest, err := s.upload(ctx, api, schedule, rec.UUID)
		if err != nil {
			log.Printf("OffsiteMirror: Upload failed for %s: %v", rec.UUID, err)
			mirror.Status = "failed"
			mirror.ErrorMessage = err.Error()
		} else {
			log.Printf("OffsiteMirror: Mirrored %s to %s (%d bytes)", rec.UUID, dest, bytes)
			mirror.Status = "success"
			mirror.Bytes = bytes
			mirror.Destination = dest
		}

		// Failed rows are retried next cycle; replace the old attempt
		database.DB.Where("backup_uuid = ?", rec.UUID).Delete(&models.BackupMirror{})
		database.DB.Create(&mirror)
	}
}

// upload streams one backup archive from the node daemon to the schedule's
// FTP destination
func (s *OffsiteMirrorService) upload(ctx context.Context, api *daemon.ServerAPI, schedule *models.BackupSchedule, backupUUID string) (int64, string, error) {
	body, size, err := api.DownloadBackup(ctx, backupUUID)
	if err != nil {
		return 0, "", fmt.Errorf("download from daemon failed: %w", err)
	}
	defer body.Close()

	conn, err := dialFTP(schedule.FTPHost, schedule.FTPPort, schedule.FTPTLS)
	if err != nil {
		return 0, "", fmt.Errorf("FTP connection failed: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(schedule.FTPUsername, schedule.FTPPassword); err != nil {
		return 0, "", fmt.Errorf("FTP login failed: %w", err)
	}

	if schedule.FTPPath != "" && schedule.FTPPath != "/" {
		if err := conn.ChangeDir(schedule.FTPPath); err != nil {
			conn.MakeDir(schedule.FTPPath)
			if err := conn.ChangeDir(schedule.FTPPath); err != nil {
				return 0, "", fmt.Errorf("FTP directory change failed: %w", err)
			}
		}
	}

	filename := backupUUID + ".tar.gz"
	if err := conn.Stor(filename, body); err != nil {
		return 0, "", fmt.Errorf("FTP upload failed: %w", err)
	}

	dest := fmt.Sprintf("ftp://%s%s/%s", schedule.FTPHost, schedule.FTPPath, filename)
	return size, dest, nil
}

// dialFTP connects to an FTP server, with explicit TLS when requested
func dialFTP(host string, port int, useTLS bool) (*ftp.ServerConn, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	opts := []ftp.DialOption{ftp.DialWithTimeout(30 * time.Second)}
	if useTLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: host}))
	}
	return ftp.Dial(addr, opts...)
}

// TestFTPConnection tests FTP connectivity with given credentials
func TestFTPConnection(host string, port int, username, password, path string, useTLS bool) error {
	conn, err := dialFTP(host, port, useTLS)
	if err != nil {
		return fmt.Errorf("connection failed: %v", err)
	}
	defer conn.Quit()

	if err := conn.Login(username, password); err != nil {
		return fmt.Errorf("login failed: %v", err)
	}

	if path != "" && path != "/" {
		if err := conn.ChangeDir(path); err != nil {
			if err := conn.MakeDir(path); err != nil {
				return fmt.Errorf("cannot access or create directory %s: %v", path, err)
			}
		}
	}

	return nil
}
