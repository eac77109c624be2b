package usecase

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"subtrack-backend/internal/subscription/repository"
)

// EnrichmentJob asks the background worker to backfill website/logo data for
// a freshly created vendor
type EnrichmentJob struct {
	VendorID string
	Name     string
}

// knownVendors maps normalized names to curated website/category data.
// Enrichment prefers this table over guessing.
var knownVendors = map[string]struct {
	Website  string
	Category string
}{
	"netflix":         {"https://www.netflix.com", "Streaming"},
	"spotify":         {"https://www.spotify.com", "Music"},
	"disney plus":     {"https://www.disneyplus.com", "Streaming"},
	"hulu":            {"https://www.hulu.com", "Streaming"},
	"youtube premium": {"https://www.youtube.com/premium", "Streaming"},
	"amazon prime":    {"https://www.amazon.com/prime", "Streaming"},
	"apple music":     {"https://music.apple.com", "Music"},
	"icloud":          {"https://www.icloud.com", "Storage"},
	"dropbox":         {"https://www.dropbox.com", "Storage"},
	"github":          {"https://github.com", "Software"},
	"notion":          {"https://www.notion.so", "Software"},
	"adobe":           {"https://www.adobe.com", "Software"},
	"microsoft 365":   {"https://www.microsoft.com/microsoft-365", "Software"},
	"nytimes":         {"https://www.nytimes.com", "News"},
	"audible":         {"https://www.audible.com", "Entertainment"},
}

// VendorEnricher backfills vendor directory entries in the background so
// reconciliation never waits on it. The job queue is injected, never global.
type VendorEnricher struct {
	vendorRepo  repository.VendorRepository
	jobs        chan EnrichmentJob
	onUpdate    func()
	workerWg    sync.WaitGroup
	workerCount int
	started     bool
	mu          sync.Mutex
}

func NewVendorEnricher(vendorRepo repository.VendorRepository, workerCount int) *VendorEnricher {
	if workerCount <= 0 {
		workerCount = 2
	}
	return &VendorEnricher{
		vendorRepo:  vendorRepo,
		jobs:        make(chan EnrichmentJob, 100),
		workerCount: workerCount,
	}
}

// SetOnUpdate registers the callback fired after an enrichment lands,
// used to invalidate the reconciler's vendor cache.
func (e *VendorEnricher) SetOnUpdate(fn func()) {
	e.onUpdate = fn
}

// Start launches the enrichment workers
func (e *VendorEnricher) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return
	}
	for i := 0; i < e.workerCount; i++ {
		e.workerWg.Add(1)
		go e.worker(i)
	}
	e.started = true
	log.Printf("[VendorEnricher] Started %d workers", e.workerCount)
}

// Stop drains the queue and stops all workers gracefully
func (e *VendorEnricher) Stop() {
	close(e.jobs)
	e.workerWg.Wait()
	log.Println("[VendorEnricher] All workers stopped")
}

// Queue adds a job without blocking; a full queue drops the job and reports false
func (e *VendorEnricher) Queue(job EnrichmentJob) bool {
	select {
	case e.jobs <- job:
		return true
	default:
		return false
	}
}

func (e *VendorEnricher) worker(id int) {
	defer e.workerWg.Done()

	for job := range e.jobs {
		e.processJob(job)
	}
	log.Printf("[VendorEnricher] Worker %d stopped", id)
}

func (e *VendorEnricher) processJob(job EnrichmentJob) {
	vendor, err := e.vendorRepo.FindByID(job.VendorID)
	if err != nil {
		log.Printf("[VendorEnricher] Error loading vendor %s: %v", job.VendorID, err)
		return
	}
	if vendor == nil {
		return
	}

	if known, ok := knownVendors[vendor.NormalizedName]; ok {
		vendor.WebsiteURL = known.Website
		if vendor.Category == "" || vendor.Category == "Other" {
			vendor.Category = known.Category
		}
	} else if vendor.WebsiteURL == "" {
		vendor.WebsiteURL = guessWebsite(vendor.NormalizedName)
	}

	if vendor.LogoURL == "" {
		vendor.LogoURL = faviconURL(vendor.WebsiteURL)
	}
	if vendor.AccountManagementURL == "" {
		vendor.AccountManagementURL = vendor.WebsiteURL + "/account"
	}

	if err := e.vendorRepo.Update(vendor); err != nil {
		log.Printf("[VendorEnricher] Error updating vendor %s: %v", job.VendorID, err)
		return
	}

	if e.onUpdate != nil {
		e.onUpdate()
	}
	log.Printf("[VendorEnricher] Enriched vendor %s", vendor.Name)
}

func guessWebsite(normalizedName string) string {
	return fmt.Sprintf("https://www.%s.com", strings.ReplaceAll(normalizedName, " ", ""))
}

func faviconURL(website string) string {
	domain := strings.TrimPrefix(strings.TrimPrefix(website, "https://"), "http://")
	domain = strings.SplitN(domain, "/", 2)[0]
	return fmt.Sprintf("https://www.google.com/s2/favicons?domain=%s&sz=128", domain)
}
