package notify

// Template ids used by the lifecycle core.
const (
	TemplateWelcome          = "list:user:notice:welcome"
	TemplateGoodbye          = "list:user:notice:goodbye"
	TemplateWarning          = "list:user:notice:warning"
	TemplateProbe            = "list:user:notice:probe"
	TemplateConfirmSubscribe = "list:user:action:subscribe"
	TemplateConfirmUnsub     = "list:user:action:unsubscribe"
	TemplateInvite           = "list:user:action:invite"
	TemplateAdminSubscribe   = "list:admin:notice:subscribe"
	TemplateAdminUnsub       = "list:admin:notice:unsubscribe"
	TemplateAdminDisable     = "list:admin:notice:disable"
	TemplateAdminRemoval     = "list:admin:notice:removal"
	TemplateAdminApproval    = "list:admin:action:subscribe"
	TemplateRejected         = "list:user:notice:rejected"
)

// template pairs a subject line with a body, both Liquid sources.
type template struct {
	Subject string
	Body    string
}

// builtins are the site-default English templates, used when no list,
// domain, or site override exists on disk.
var builtins = map[string]template{
	TemplateWelcome: {
		Subject: `Welcome to the "{{ display_name }}" mailing list`,
		Body: `Welcome to the "{{ display_name }}" mailing list!

To post to this list, send your message to:

  {{ posting_address }}

You can unsubscribe or adjust your options by writing to:

  {{ request_address }}
`,
	},
	TemplateGoodbye: {
		Subject: `You have been unsubscribed from the "{{ display_name }}" mailing list`,
		Body: `You have been removed from the "{{ display_name }}" mailing list.
If this was a mistake, you can re-subscribe by writing to {{ request_address }}.
`,
	},
	TemplateWarning: {
		Subject: `Your subscription to "{{ display_name }}" has been disabled`,
		Body: `Mail to your address has been bouncing, so delivery of messages from
the "{{ display_name }}" mailing list has been disabled. You will receive
{{ remaining_warnings }} more reminder(s) before your address is removed
from the list. To re-enable delivery, write to {{ request_address }}.
`,
	},
	TemplateProbe: {
		Subject: `Test message from the "{{ display_name }}" mailing list`,
		Body: `Recent messages from the "{{ display_name }}" mailing list to your
address have bounced. This probe tests whether your address is reachable.
No action is needed if you receive it; a bounce of this very message will
disable delivery to your address.
`,
	},
	TemplateConfirmSubscribe: {
		Subject: `Your confirmation is needed to join the {{ display_name }} mailing list.`,
		Body: `Email address registration confirmation for {{ email }}.

Before you can be subscribed to the "{{ display_name }}" mailing list, your
request must be confirmed. Reply to this message keeping the subject line
intact, or visit your list manager and enter this token:

  {{ token }}

If you did not request this, simply ignore this message and the request
will expire on its own.
`,
	},
	TemplateConfirmUnsub: {
		Subject: `Your confirmation is needed to leave the {{ display_name }} mailing list.`,
		Body: `Unsubscription confirmation for {{ email }}.

Before you can be removed from the "{{ display_name }}" mailing list, your
request must be confirmed. Reply to this message keeping the subject line
intact, or enter this token:

  {{ token }}
`,
	},
	TemplateInvite: {
		Subject: `You have been invited to join the {{ display_name }} mailing list`,
		Body: `Your address {{ email }} has been invited to join the "{{ display_name }}"
mailing list at {{ mail_host }}. To accept, reply to this message keeping
the subject line intact, or enter this token:

  {{ token }}

To decline, simply ignore this message; the invitation will expire.
`,
	},
	TemplateAdminSubscribe: {
		Subject: `{{ display_name }} subscription notification`,
		Body:    `{{ member }} has been successfully subscribed to {{ display_name }}.`,
	},
	TemplateAdminUnsub: {
		Subject: `{{ display_name }} unsubscription notification`,
		Body:    `{{ member }} has been removed from {{ display_name }}.`,
	},
	TemplateAdminDisable: {
		Subject: `{{ member }}'s subscription disabled on {{ display_name }}`,
		Body: `{{ member }}'s bounce score on the {{ display_name }} list crossed the
threshold and delivery has been disabled. No further action is required.
`,
	},
	TemplateAdminRemoval: {
		Subject: `{{ member }} unsubscribed from {{ display_name }} mailing list due to bounces`,
		Body: `{{ member }} has been removed from {{ display_name }} after exhausting
the configured number of delivery warnings.
`,
	},
	TemplateAdminApproval: {
		Subject: `New subscription request to {{ display_name }} from {{ email }}`,
		Body: `Your authorization is required for a mailing list subscription request
approval:

  For:  {{ email }}
  List: {{ posting_address }}

Token: {{ token }}
`,
	},
	TemplateRejected: {
		Subject: `Request to mailing list "{{ display_name }}" rejected`,
		Body: `Your request to the {{ posting_address }} mailing list

  {{ request_description }}

has been rejected by the list moderator.
{% if reason != "" %}
The moderator gave the following reason:

"{{ reason }}"
{% endif %}`,
	},
}
