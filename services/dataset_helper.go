package services

import (
	"fmt"
	"strings"
	"time"

	"freshness-emailer/catalog"
	"freshness-emailer/utils"
)

// Contact is a displayable (name, email) pair for a resolved stakeholder.
type Contact struct {
	Name  string
	Email string
}

var freshnessStatusNames = map[int]string{
	0: "Fresh",
	1: "Due",
	2: "Overdue",
	3: "Delinquent",
}

// FreshnessStatusName renders the ordinal freshness status.
func FreshnessStatusName(fresh *int) string {
	if fresh == nil {
		return "None"
	}
	if name, ok := freshnessStatusNames[*fresh]; ok {
		return name
	}
	return "None"
}

// DatasetHelper indexes the cycle's user and organization snapshots and
// resolves each dataset's notification targets.
type DatasetHelper struct {
	siteURL          string
	users            map[string]catalog.User
	sysadmins        map[string]bool
	sysadminsToEmail []catalog.User
	// orgID -> capacity -> member user IDs
	orgCapacities map[string]map[string][]string
}

// NewDatasetHelper builds the per-cycle indexes. Sysadmins whose email is in
// ignoreSysadminEmails, or who have no fullname, are excluded from sysadmin
// broadcasts but still count as sysadmins for maintainer validity.
func NewDatasetHelper(siteURL string, users []catalog.User, organizations []catalog.Organization,
	ignoreSysadminEmails []string) *DatasetHelper {
	ignored := map[string]bool{}
	for _, email := range ignoreSysadminEmails {
		ignored[email] = true
	}
	h := &DatasetHelper{
		siteURL:       strings.TrimSuffix(siteURL, "/"),
		users:         map[string]catalog.User{},
		sysadmins:     map[string]bool{},
		orgCapacities: map[string]map[string][]string{},
	}
	for _, user := range users {
		h.users[user.ID] = user
		if user.Sysadmin {
			h.sysadmins[user.ID] = true
			if user.FullName != "" && !ignored[user.Email] {
				h.sysadminsToEmail = append(h.sysadminsToEmail, user)
			}
		}
	}
	for _, org := range organizations {
		capacities := map[string][]string{}
		for _, member := range org.Users {
			capacities[member.Capacity] = append(capacities[member.Capacity], member.ID)
		}
		h.orgCapacities[org.ID] = capacities
	}
	return h
}

// UserByID looks a user up in the directory snapshot.
func (h *DatasetHelper) UserByID(id string) (catalog.User, bool) {
	user, ok := h.users[id]
	return user, ok
}

// IsSysadmin reports whether the user id belongs to a sysadmin.
func (h *DatasetHelper) IsSysadmin(id string) bool {
	return h.sysadmins[id]
}

// SysadminEmails is the sysadmin broadcast list.
func (h *DatasetHelper) SysadminEmails() []string {
	emails := make([]string, 0, len(h.sysadminsToEmail))
	for _, user := range h.sysadminsToEmail {
		emails = append(emails, user.Email)
	}
	return emails
}

// OrgMembers returns the member user ids of an organization at a capacity.
func (h *DatasetHelper) OrgMembers(orgID, capacity string) []string {
	return h.orgCapacities[orgID][capacity]
}

// Maintainer resolves a dataset's maintainer against the directory.
func (h *DatasetHelper) Maintainer(dataset DatasetRow) (catalog.User, bool) {
	return h.UserByID(dataset.Maintainer)
}

// OrgAdmins returns the resolvable admins of the dataset's organization.
func (h *DatasetHelper) OrgAdmins(dataset DatasetRow) []catalog.User {
	var admins []catalog.User
	for _, id := range h.OrgMembers(dataset.OrganizationID, "admin") {
		if user, ok := h.UserByID(id); ok {
			admins = append(admins, user)
		}
	}
	return admins
}

// MaintainerOrgAdmins resolves the notification targets for one dataset.
// A resolvable maintainer is the sole addressee; org admins are then looked
// up for display only. Without a maintainer every resolvable org admin is
// notified. The two branches never mix for the same dataset.
func (h *DatasetHelper) MaintainerOrgAdmins(dataset DatasetRow) (maintainer *Contact, orgAdmins []Contact, usersToEmail []catalog.User) {
	if user, ok := h.Maintainer(dataset); ok {
		usersToEmail = append(usersToEmail, user)
		maintainer = &Contact{Name: UserName(user), Email: user.Email}
	}
	for _, admin := range h.OrgAdmins(dataset) {
		if maintainer == nil {
			usersToEmail = append(usersToEmail, admin)
		}
		orgAdmins = append(orgAdmins, Contact{Name: UserName(admin), Email: admin.Email})
	}
	return maintainer, orgAdmins, usersToEmail
}

// UserName picks the best available display name.
func UserName(user catalog.User) string {
	if user.DisplayName != "" {
		return user.DisplayName
	}
	if user.FullName != "" {
		return user.FullName
	}
	return user.Name
}

// DatasetURL returns the dataset's page on the catalog site.
func (h *DatasetHelper) DatasetURL(dataset DatasetRow) string {
	return fmt.Sprintf("%s/dataset/%s", h.siteURL, dataset.Name)
}

// OrganizationURL returns the organization's page on the catalog site.
func (h *DatasetHelper) OrganizationURL(org OrgInfo) string {
	return fmt.Sprintf("%s/organization/%s", h.siteURL, org.Name)
}

// DatasetStringOptions controls which parts of a dataset line are rendered.
type DatasetStringOptions struct {
	ForSysadmin        bool
	IncludeOrg         bool
	IncludeFreshness   bool
	IncludeDatasetDate bool
}

// CreateDatasetString renders one dataset as parallel plain and HTML
// fragments: title and link, then depending on the audience the
// organization, maintainer or fallback org admins, and the expected update
// frequency, optionally with freshness and dataset date.
func (h *DatasetHelper) CreateDatasetString(dataset DatasetRow, maintainer *Contact, orgAdmins []Contact,
	opts DatasetStringOptions) (string, string) {
	url := h.DatasetURL(dataset)
	var msg, htmlMsg strings.Builder
	fmt.Fprintf(&msg, "%s (%s)", dataset.Title, url)
	fmt.Fprintf(&htmlMsg, "<a href=\"%s\">%s</a>", url, dataset.Title)
	if opts.ForSysadmin && opts.IncludeOrg {
		orgMsg := fmt.Sprintf(" from %s", dataset.OrganizationTitle)
		msg.WriteString(orgMsg)
		htmlMsg.WriteString(orgMsg)
	}
	if maintainer != nil {
		if opts.ForSysadmin {
			fmt.Fprintf(&msg, " maintained by %s (%s)", maintainer.Name, maintainer.Email)
			fmt.Fprintf(&htmlMsg, " maintained by <a href=\"mailto:%s\">%s</a>", maintainer.Email, maintainer.Name)
		}
	} else {
		if opts.ForSysadmin {
			const missingMaintainer = " with missing maintainer and organization administrators "
			msg.WriteString(missingMaintainer)
			htmlMsg.WriteString(missingMaintainer)
		}
		var userMsg, userHTMLMsg []string
		for _, admin := range orgAdmins {
			userMsg = append(userMsg, fmt.Sprintf("%s (%s)", admin.Name, admin.Email))
			userHTMLMsg = append(userHTMLMsg, fmt.Sprintf("<a href=\"mailto:%s\">%s</a>", admin.Email, admin.Name))
		}
		if opts.ForSysadmin {
			msg.WriteString(strings.Join(userMsg, ", "))
			htmlMsg.WriteString(strings.Join(userHTMLMsg, ", "))
		}
	}
	updateFrequency := utils.UpdateFrequencyName(dataset.UpdateFrequency)
	fmt.Fprintf(&msg, " with expected update frequency: %s", updateFrequency)
	fmt.Fprintf(&htmlMsg, " with expected update frequency: %s", updateFrequency)
	if opts.IncludeFreshness {
		fresh := FreshnessStatusName(dataset.Fresh)
		fmt.Fprintf(&msg, " and freshness: %s", fresh)
		fmt.Fprintf(&htmlMsg, " and freshness: %s", fresh)
	}
	if opts.IncludeDatasetDate {
		fmt.Fprintf(&msg, " and date of dataset: %s", dataset.DatasetDate)
		fmt.Fprintf(&htmlMsg, " and date of dataset: %s", dataset.DatasetDate)
	}
	msg.WriteString("\n")
	htmlMsg.WriteString("<br>")
	return msg.String(), htmlMsg.String()
}

// IsDatasetDateStale reports whether a dataset's claimed temporal coverage
// lags its latest modification by more than one update period. Never and
// as-needed frequencies are judged against a year; live against a day.
func IsDatasetDateStale(dataset DatasetRow) bool {
	if dataset.UpdateFrequency == nil {
		return false
	}
	updateFrequency := *dataset.UpdateFrequency
	if updateFrequency == utils.FrequencyLive {
		updateFrequency = 1
	}
	if updateFrequency == utils.FrequencyNever || updateFrequency == utils.FrequencyAsNeeded {
		updateFrequency = 365
	}
	_, endDate, ok := utils.ParseDatasetDates(dataset.DatasetDate)
	if !ok {
		return false
	}
	delta := dataset.LatestOfModifieds.Sub(endDate)
	return delta > time.Duration(updateFrequency)*24*time.Hour
}
