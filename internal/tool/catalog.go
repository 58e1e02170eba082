package tool

import "encoding/json"

const (
	FetchSharePointData     = "fetchSharePointData"
	PerformSharePointAction = "performSharePointAction"
	ManageSharePointItem    = "manageSharePointItem"
)

// Default returns the reference catalog: one tool per SharePoint flow.
func Default() *Catalog {
	c, err := NewCatalog(
		Definition{
			Name:        FetchSharePointData,
			Description: "Fetch a summary of client communication records from SharePoint. Returns multi-line text where each line is one record with fields separated by |.",
			Category:    CategoryQuery,
			Parameters:  json.RawMessage(fetchSchema),
		},
		Definition{
			Name:        PerformSharePointAction,
			Description: "Perform structured actions for a client conversation, such as sending emails, booking sessions with Teams meetings, or replying to an existing thread. This calls a Power Automate flow which updates Outlook and SharePoint.",
			Category:    CategoryAction,
			Parameters:  json.RawMessage(actionSchema),
		},
		Definition{
			Name:        ManageSharePointItem,
			Description: "Update or delete a SharePoint item via a Power Automate flow. Use this to patch fields on ClientTrainingStatus or to delete a conversation record when instructed.",
			Category:    CategoryManage,
			Parameters:  json.RawMessage(manageSchema),
		},
	)
	if err != nil {
		panic(err)
	}
	return c
}

const fetchSchema = `{
  "type": "object",
  "properties": {
    "query": {
      "type": "string",
      "description": "Optional natural-language description or OData-style filter for which records you want. For example: 'conversations awaiting response', 'software installed awaiting hours', or an OData expression like substringof('John', Title). If unsure, use a short natural language phrase."
    }
  },
  "required": [],
  "additionalProperties": false
}`

const actionSchema = `{
  "type": "object",
  "properties": {
    "flow_type": {
      "type": "integer",
      "enum": [1, 2, 3, 99],
      "description": "Type of action to perform. Use 1 to send a brand new email, 2 to create a booking (calendar event + Teams meeting) and update SharePoint, 3 to reply to an existing email conversation, 99 for a non-destructive test or no-op if supported."
    },
    "description": {
      "type": "string",
      "description": "Internal description of what this action is doing, for logging in SharePoint and Power Automate. Summarise the user's request here."
    },
    "client_name": {
      "type": "string",
      "description": "Client's full name as stored in SharePoint if known."
    },
    "client_email": {
      "type": "string",
      "description": "Client's primary email address."
    },
    "email_source": {
      "type": "string",
      "description": "Which brand/mailbox to use, e.g. 'neurobox' or 'enablingtech'."
    },
    "email_subject": {
      "type": "string",
      "description": "Subject line for outgoing emails. For replies, usually reuse the existing subject."
    },
    "email_body": {
      "type": "string",
      "description": "Plain-text body of the email to send to the client. Write friendly, professional text ready to send."
    },
    "body_event": {
      "type": "string",
      "description": "Optional long body/notes for a calendar event or booking. If there is nothing to add, send a single space character.",
      "default": " "
    },
    "start_time": {
      "type": "string",
      "description": "Start time for a booking in UK local time, formatted as YYYY-MM-DDTHH:mm:ss with NO timezone suffix (no Z or offset). For actions that do not create a booking, pass an empty string."
    },
    "end_time": {
      "type": "string",
      "description": "End time for a booking in UK local time, formatted as YYYY-MM-DDTHH:mm:ss with NO timezone suffix (no Z or offset). For actions that do not create a booking, pass an empty string."
    },
    "conversation_id": {
      "type": "string",
      "description": "Outlook conversation ID for this thread. Required when replying in an existing thread; can be empty for brand new outbound emails."
    },
    "message_id": {
      "type": "string",
      "description": "Outlook message ID to reply to. Required when replying to a specific message; can be empty for brand new outbound emails."
    },
    "source": {
      "type": "string",
      "description": "Free text indicating that this call came from the GPT voice agent, e.g. 'GPT-Automation'.",
      "default": "GPT-Automation"
    },
    "sharepoint_id": {
      "type": "integer",
      "description": "The numeric SharePoint list item ID for the conversation to update. If there is no existing list item, use 0.",
      "default": 0
    }
  },
  "required": [
    "flow_type", "description", "client_name", "client_email", "email_source",
    "email_subject", "email_body", "start_time", "end_time", "conversation_id",
    "message_id", "source", "sharepoint_id"
  ],
  "additionalProperties": false
}`

const manageSchema = `{
  "type": "object",
  "properties": {
    "flow_type": {
      "type": "integer",
      "enum": [4, 5],
      "description": "Type of operation. Use 4 to PATCH/update fields on a SharePoint item. Use 5 to DELETE a SharePoint item."
    },
    "sharepoint_id": {
      "type": "string",
      "description": "The ID of the SharePoint item to update or delete. Use the exact ID from the SharePoint list."
    },
    "send_http_request_to_sharepoint": {
      "type": "string",
      "description": "When flow_type is 4 (update), this must contain a JSON string representing the body of the HTTP PATCH request that Power Automate will send to SharePoint. For delete (flow_type 5), send an empty string.",
      "default": ""
    }
  },
  "required": ["flow_type", "sharepoint_id", "send_http_request_to_sharepoint"],
  "additionalProperties": false
}`
